package status

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/svcstack/internal/model"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeACM struct {
	pages  []*acm.ListCertificatesOutput
	detail map[string]*acmtypes.CertificateDetail
	listed int
}

func (f *fakeACM) ListCertificates(ctx context.Context, params *acm.ListCertificatesInput, optFns ...func(*acm.Options)) (*acm.ListCertificatesOutput, error) {
	page := f.pages[f.listed]
	f.listed++
	return page, nil
}

func (f *fakeACM) DescribeCertificate(ctx context.Context, params *acm.DescribeCertificateInput, optFns ...func(*acm.Options)) (*acm.DescribeCertificateOutput, error) {
	d, ok := f.detail[aws.ToString(params.CertificateArn)]
	if !ok {
		return nil, errors.New("not found")
	}
	return &acm.DescribeCertificateOutput{Certificate: d}, nil
}

type fakePipelines struct {
	state *codepipeline.GetPipelineStateOutput
	err   error
}

func (f *fakePipelines) GetPipelineState(ctx context.Context, params *codepipeline.GetPipelineStateInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error) {
	return f.state, f.err
}

func summary(arn, domain string, created time.Time) acmtypes.CertificateSummary {
	return acmtypes.CertificateSummary{
		CertificateArn: aws.String(arn),
		DomainName:     aws.String(domain),
		CreatedAt:      aws.Time(created),
	}
}

func pendingACM() *fakeACM {
	return &fakeACM{
		pages: []*acm.ListCertificatesOutput{
			{
				CertificateSummaryList: []acmtypes.CertificateSummary{
					summary("arn:old", "hws.bar.hypto.co.in", now.Add(-72*time.Hour)),
					summary("arn:other", "foo.hypto.co.in", now.Add(-time.Hour)),
				},
				NextToken: aws.String("next"),
			},
			{
				CertificateSummaryList: []acmtypes.CertificateSummary{
					summary("arn:new", "hws.bar.hypto.co.in", now.Add(-time.Hour)),
				},
			},
		},
		detail: map[string]*acmtypes.CertificateDetail{
			"arn:new": {
				Status:    acmtypes.CertificateStatusPendingValidation,
				CreatedAt: aws.Time(now.Add(-time.Hour)),
				DomainValidationOptions: []acmtypes.DomainValidation{{
					ResourceRecord: &acmtypes.ResourceRecord{
						Name:  aws.String("_x.hws.bar.hypto.co.in."),
						Type:  acmtypes.RecordTypeCname,
						Value: aws.String("_y.acm-validations.aws."),
					},
				}},
			},
		},
	}
}

func newTestReporter(certs CertificateAPI, pipelines PipelineAPI) *Reporter {
	r := NewReporter(certs, pipelines)
	r.now = func() time.Time { return now }
	return r
}

func TestCertificatePendingPastTimeout(t *testing.T) {
	certs := pendingACM()
	st, err := newTestReporter(certs, nil).Certificate(context.Background(), "hws.bar.hypto.co.in", 45*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 2, certs.listed)
	assert.Equal(t, "arn:new", st.Arn)
	assert.Equal(t, "PENDING_VALIDATION", st.Status)
	assert.Equal(t, time.Hour, st.Age)
	assert.True(t, st.Stalled)
	assert.Equal(t, []string{"_x.hws.bar.hypto.co.in. CNAME _y.acm-validations.aws."}, st.Records)
}

func TestCertificateWithinTimeout(t *testing.T) {
	st, err := newTestReporter(pendingACM(), nil).Certificate(context.Background(), "hws.bar.hypto.co.in", 2*time.Hour)
	require.NoError(t, err)
	assert.False(t, st.Stalled)
}

func TestCertificateNotFound(t *testing.T) {
	st, err := newTestReporter(pendingACM(), nil).Certificate(context.Background(), "missing.hypto.co.in", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", st.Status)
	assert.Empty(t, st.Arn)
}

func actionState(name string, status cptypes.ActionExecutionStatus, msg string) cptypes.ActionState {
	exec := &cptypes.ActionExecution{Status: status}
	if msg != "" {
		exec.ErrorDetails = &cptypes.ErrorDetails{Message: aws.String(msg)}
	}
	return cptypes.ActionState{ActionName: aws.String(name), LatestExecution: exec}
}

func TestPipelineAwaitingApproval(t *testing.T) {
	pipelines := &fakePipelines{state: &codepipeline.GetPipelineStateOutput{
		StageStates: []cptypes.StageState{
			{StageName: aws.String("Source"), ActionStates: []cptypes.ActionState{actionState("Source", cptypes.ActionExecutionStatusSucceeded, "")}},
			{StageName: aws.String("Build"), ActionStates: []cptypes.ActionState{actionState("Build", cptypes.ActionExecutionStatusSucceeded, "")}},
			{StageName: aws.String("Deploy"), ActionStates: []cptypes.ActionState{
				actionState("Approval", cptypes.ActionExecutionStatusInProgress, ""),
				{ActionName: aws.String("Deploy")},
			}},
		},
	}}

	st, err := newTestReporter(nil, pipelines).Pipeline(context.Background(), "bar-service")
	require.NoError(t, err)
	assert.True(t, st.AwaitingApproval)
	assert.False(t, st.Failed)
	require.Len(t, st.Actions, 4)
	assert.Equal(t, ActionStatus{Stage: "Deploy", Action: "Deploy", Status: "NotStarted"}, st.Actions[3])
}

func TestPipelineFailure(t *testing.T) {
	pipelines := &fakePipelines{state: &codepipeline.GetPipelineStateOutput{
		StageStates: []cptypes.StageState{
			{StageName: aws.String("Build"), ActionStates: []cptypes.ActionState{
				actionState("Build", cptypes.ActionExecutionStatusFailed, "docker push denied"),
			}},
		},
	}}

	st, err := newTestReporter(nil, pipelines).Pipeline(context.Background(), "bar-service")
	require.NoError(t, err)
	assert.True(t, st.Failed)
	assert.Equal(t, "docker push denied", st.Actions[0].Error)

	pipelines.err = errors.New("PipelineNotFoundException")
	_, err = newTestReporter(nil, pipelines).Pipeline(context.Background(), "bar-service")
	assert.ErrorContains(t, err, "PipelineNotFoundException")
}

func TestReportAndPrint(t *testing.T) {
	color.NoColor = true

	env := model.Environment{Name: "production", Settings: model.Settings{
		Service: model.ServiceSettings{
			Name:               "bar-service",
			DomainName:         "hws.bar.hypto.co.in",
			CertificateTimeout: 45 * time.Minute,
		},
	}}
	pipelines := &fakePipelines{state: &codepipeline.GetPipelineStateOutput{
		StageStates: []cptypes.StageState{
			{StageName: aws.String("Deploy"), ActionStates: []cptypes.ActionState{
				actionState("Approval", cptypes.ActionExecutionStatusInProgress, ""),
			}},
		},
	}}

	report, err := newTestReporter(pendingACM(), pipelines).Report(context.Background(), env)
	require.NoError(t, err)

	var buf bytes.Buffer
	Print(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "Environment: production")
	assert.Contains(t, out, "PENDING_VALIDATION")
	assert.Contains(t, out, "pending longer than 45m0s")
	assert.Contains(t, out, "waiting for manual approval")
}
