package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/go-logr/logr"

	"github.com/sourceplane/svcstack/internal/construct"
	"github.com/sourceplane/svcstack/internal/model"
)

// CertificateAPI is the part of the ACM client used for status
type CertificateAPI interface {
	ListCertificates(ctx context.Context, params *acm.ListCertificatesInput, optFns ...func(*acm.Options)) (*acm.ListCertificatesOutput, error)
	DescribeCertificate(ctx context.Context, params *acm.DescribeCertificateInput, optFns ...func(*acm.Options)) (*acm.DescribeCertificateOutput, error)
}

// PipelineAPI is the part of the CodePipeline client used for status
type PipelineAPI interface {
	GetPipelineState(ctx context.Context, params *codepipeline.GetPipelineStateInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error)
}

// CertificateStatus is the validation state of the service certificate
type CertificateStatus struct {
	Domain  string
	Arn     string
	Status  string
	Age     time.Duration
	Timeout time.Duration
	// Stalled is set when validation is still pending after Timeout
	Stalled bool
	Records []string
}

// ActionStatus is the latest execution of one pipeline action
type ActionStatus struct {
	Stage   string
	Action  string
	Status  string
	Summary string
	Error   string
}

// PipelineStatus is the latest state of the delivery pipeline
type PipelineStatus struct {
	Name             string
	Actions          []ActionStatus
	AwaitingApproval bool
	Failed           bool
}

// Report is the status of one environment
type Report struct {
	Environment string
	Certificate *CertificateStatus
	Pipeline    *PipelineStatus
}

// Reporter reads deployment state. It only reads: nothing is retried,
// approved or restarted.
type Reporter struct {
	certs     CertificateAPI
	pipelines PipelineAPI
	now       func() time.Time
}

// NewReporter creates a reporter over the given clients
func NewReporter(certs CertificateAPI, pipelines PipelineAPI) *Reporter {
	return &Reporter{certs: certs, pipelines: pipelines, now: time.Now}
}

// Report collects certificate and pipeline status for an environment
func (r *Reporter) Report(ctx context.Context, env model.Environment) (*Report, error) {
	cfg := env.Settings
	report := &Report{Environment: env.Name}

	cert, err := r.Certificate(ctx, cfg.Service.DomainName, cfg.Service.CertificateTimeout)
	if err != nil {
		return nil, err
	}
	report.Certificate = cert

	pipeline, err := r.Pipeline(ctx, cfg.Service.Name)
	if err != nil {
		return nil, err
	}
	report.Pipeline = pipeline
	return report, nil
}

// Certificate finds the newest certificate for domain and compares a
// pending validation against timeout
func (r *Reporter) Certificate(ctx context.Context, domain string, timeout time.Duration) (*CertificateStatus, error) {
	log := logr.FromContextOrDiscard(ctx)

	arn, err := r.findCertificate(ctx, domain)
	if err != nil {
		return nil, err
	}
	if arn == "" {
		return &CertificateStatus{Domain: domain, Status: "NOT_FOUND", Timeout: timeout}, nil
	}

	out, err := r.certs.DescribeCertificate(ctx, &acm.DescribeCertificateInput{CertificateArn: aws.String(arn)})
	if err != nil {
		return nil, fmt.Errorf("acm DescribeCertificate %s: %w", arn, err)
	}
	detail := out.Certificate
	if detail == nil {
		return nil, fmt.Errorf("acm DescribeCertificate %s: empty response", arn)
	}

	st := &CertificateStatus{
		Domain:  domain,
		Arn:     arn,
		Status:  string(detail.Status),
		Timeout: timeout,
	}
	if detail.CreatedAt != nil {
		st.Age = r.now().Sub(*detail.CreatedAt)
	}
	for _, dv := range detail.DomainValidationOptions {
		if rr := dv.ResourceRecord; rr != nil {
			st.Records = append(st.Records, fmt.Sprintf("%s %s %s", aws.ToString(rr.Name), rr.Type, aws.ToString(rr.Value)))
		}
	}
	st.Stalled = detail.Status == acmtypes.CertificateStatusPendingValidation && timeout > 0 && st.Age > timeout

	log.V(1).Info("certificate status", "domain", domain, "status", st.Status, "age", st.Age)
	return st, nil
}

func (r *Reporter) findCertificate(ctx context.Context, domain string) (string, error) {
	var (
		arn    string
		newest time.Time
		token  *string
	)
	for {
		out, err := r.certs.ListCertificates(ctx, &acm.ListCertificatesInput{NextToken: token})
		if err != nil {
			return "", fmt.Errorf("acm ListCertificates: %w", err)
		}
		for _, c := range out.CertificateSummaryList {
			if !strings.EqualFold(aws.ToString(c.DomainName), domain) {
				continue
			}
			created := aws.ToTime(c.CreatedAt)
			if arn == "" || created.After(newest) {
				arn, newest = aws.ToString(c.CertificateArn), created
			}
		}
		if out.NextToken == nil {
			return arn, nil
		}
		token = out.NextToken
	}
}

// Pipeline reads the latest execution of every stage and action
func (r *Reporter) Pipeline(ctx context.Context, name string) (*PipelineStatus, error) {
	out, err := r.pipelines.GetPipelineState(ctx, &codepipeline.GetPipelineStateInput{Name: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("codepipeline GetPipelineState %s: %w", name, err)
	}

	st := &PipelineStatus{Name: name}
	for _, stage := range out.StageStates {
		for _, action := range stage.ActionStates {
			as := ActionStatus{
				Stage:  aws.ToString(stage.StageName),
				Action: aws.ToString(action.ActionName),
				Status: "NotStarted",
			}
			if exec := action.LatestExecution; exec != nil {
				as.Status = string(exec.Status)
				as.Summary = aws.ToString(exec.Summary)
				if exec.ErrorDetails != nil {
					as.Error = aws.ToString(exec.ErrorDetails.Message)
				}
				switch {
				case exec.Status == cptypes.ActionExecutionStatusFailed:
					st.Failed = true
				case exec.Status == cptypes.ActionExecutionStatusInProgress && as.Action == construct.ActionApproval:
					st.AwaitingApproval = true
				}
			}
			st.Actions = append(st.Actions, as)
		}
	}
	return st, nil
}
