package construct

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sourceplane/svcstack/internal/model"
)

const (
	DefaultHealthCheckPath = "/AWS.ALB/healthcheck"
	// DefaultGRPCSuccessCode is UNIMPLEMENTED: the load balancer calls a
	// method the service does not serve, and any gRPC answer proves it is up
	DefaultGRPCSuccessCode = "12"
)

// AutoscalingProps bounds the running task count and sets the CPU target
type AutoscalingProps struct {
	MinCapacity      int
	MaxCapacity      int
	TargetCPUPercent int
	ScaleInCooldown  time.Duration
	ScaleOutCooldown time.Duration
}

func (a AutoscalingProps) validate() error {
	if a.MinCapacity < 1 {
		return fmt.Errorf("%w: autoscaling minCapacity must be at least 1, got %d", ErrInvalidProps, a.MinCapacity)
	}
	if a.MaxCapacity < a.MinCapacity {
		return fmt.Errorf("%w: autoscaling maxCapacity %d is below minCapacity %d", ErrInvalidProps, a.MaxCapacity, a.MinCapacity)
	}
	if a.TargetCPUPercent < 1 || a.TargetCPUPercent > 100 {
		return fmt.Errorf("%w: autoscaling target CPU must be within 1..100, got %d", ErrInvalidProps, a.TargetCPUPercent)
	}
	if a.ScaleInCooldown < 0 || a.ScaleOutCooldown < 0 {
		return fmt.Errorf("%w: autoscaling cooldowns must not be negative", ErrInvalidProps)
	}
	return nil
}

// ServiceProps configures the load-balanced gRPC service
type ServiceProps struct {
	Name             string
	DomainName       string
	ListenerPort     int
	ContainerPort    int
	ContainerName    string
	CPU              int
	Memory           int
	LogRetentionDays int
	Image            ImageSource
	Autoscaling      AutoscalingProps
	HealthCheckPath  string
	GRPCSuccessCode  string
	HealthInterval   time.Duration
}

// ServiceHandle is what the pipeline needs to deploy to a running service
type ServiceHandle struct {
	ServiceID      string
	ClusterID      string
	CertificateID  string
	ContainerName  string
	DomainName     string
	Repository     *RepositoryRef
	ExecutionRole  *Role
	TaskRole       *Role
	TaskDefinition string
}

// Validate fails when the handle cannot be deployed to
func (h *ServiceHandle) Validate() error {
	if h == nil {
		return fmt.Errorf("%w: no service", ErrIncompleteServiceHandle)
	}
	missing := ""
	switch {
	case h.ServiceID == "":
		missing = "service"
	case h.ClusterID == "":
		missing = "cluster"
	case h.ContainerName == "":
		missing = "container name"
	case h.Repository == nil:
		missing = "repository"
	case h.ExecutionRole == nil || h.TaskRole == nil:
		missing = "task roles"
	}
	if missing != "" {
		return fmt.Errorf("%w: %s not set", ErrIncompleteServiceHandle, missing)
	}
	return nil
}

// ServiceName returns the ECS service name
func (h *ServiceHandle) ServiceName() interface{} {
	return model.GetAtt(h.ServiceID, "Name")
}

// NewService declares the certificate, load balancer, Fargate service, DNS
// record and autoscaling. The execution role pulls from repo; nothing on the
// service side may push.
func NewService(scope Scope, cluster *NetworkCluster, repo *RepositoryRef, props ServiceProps) (*ServiceHandle, error) {
	if cluster == nil {
		return nil, fmt.Errorf("%w: service needs a cluster", ErrMissingConfig)
	}
	if repo == nil {
		return nil, fmt.Errorf("%w: service needs a repository", ErrMissingConfig)
	}
	if props.Name == "" {
		return nil, fmt.Errorf("%w: service name", ErrMissingConfig)
	}
	if props.DomainName == "" {
		return nil, fmt.Errorf("%w: service domain name", ErrMissingConfig)
	}
	if !cluster.Zone.Contains(props.DomainName) {
		return nil, fmt.Errorf("%w: %s is not in %s", ErrDomainOutsideZone, props.DomainName, cluster.Zone.Name)
	}
	if props.Image == nil {
		return nil, fmt.Errorf("%w: service image", ErrMissingConfig)
	}
	if err := validPort("listenerPort", props.ListenerPort); err != nil {
		return nil, err
	}
	if err := validPort("containerPort", props.ContainerPort); err != nil {
		return nil, err
	}
	if props.ContainerName == "" {
		return nil, fmt.Errorf("%w: container name", ErrMissingConfig)
	}
	if err := props.Autoscaling.validate(); err != nil {
		return nil, err
	}
	if props.CPU <= 0 || props.Memory <= 0 {
		return nil, fmt.Errorf("%w: task cpu and memory must be positive", ErrInvalidProps)
	}
	if props.HealthCheckPath == "" {
		props.HealthCheckPath = DefaultHealthCheckPath
	}
	if props.GRPCSuccessCode == "" {
		props.GRPCSuccessCode = DefaultGRPCSuccessCode
	}

	h := &ServiceHandle{
		ClusterID:     cluster.ClusterID,
		ContainerName: props.ContainerName,
		DomainName:    props.DomainName,
		Repository:    repo,
	}

	h.CertificateID, _ = scope.AddResource("Certificate", "AWS::CertificateManager::Certificate", map[string]interface{}{
		"DomainName":       props.DomainName,
		"ValidationMethod": "DNS",
		"DomainValidationOptions": []interface{}{
			map[string]interface{}{
				"DomainName":   props.DomainName,
				"HostedZoneId": cluster.Zone.ID,
			},
		},
	})

	logProps := map[string]interface{}{}
	if props.LogRetentionDays > 0 {
		logProps["RetentionInDays"] = props.LogRetentionDays
	}
	logGroupID, logGroup := scope.AddResource("LogGroup", "AWS::Logs::LogGroup", logProps)
	logGroup.DeletionPolicy = "Retain"
	logGroup.UpdateReplacePolicy = "Retain"

	taskScope := scope.Child("TaskDef")
	h.ExecutionRole = newRole(taskScope, "ExecutionRole", "ecs-tasks.amazonaws.com")
	h.TaskRole = newRole(taskScope, "TaskRole", "ecs-tasks.amazonaws.com")

	repo.GrantPull(h.ExecutionRole)
	h.ExecutionRole.grant(logGroupID, PolicyStatement{
		Actions:   []string{"logs:CreateLogStream", "logs:PutLogEvents"},
		Resources: []interface{}{model.GetAtt(logGroupID, "Arn")},
	})

	var taskDef *model.Resource
	h.TaskDefinition, taskDef = scope.AddResource("TaskDef", "AWS::ECS::TaskDefinition", map[string]interface{}{
		"Family":                  props.Name,
		"Cpu":                     strconv.Itoa(props.CPU),
		"Memory":                  strconv.Itoa(props.Memory),
		"NetworkMode":             "awsvpc",
		"RequiresCompatibilities": []interface{}{"FARGATE"},
		"ExecutionRoleArn":        h.ExecutionRole.Arn(),
		"TaskRoleArn":             h.TaskRole.Arn(),
		"ContainerDefinitions": []interface{}{
			map[string]interface{}{
				"Name":      props.ContainerName,
				"Image":     props.Image.ImageURI(),
				"Essential": true,
				"PortMappings": []interface{}{
					map[string]interface{}{"ContainerPort": props.ContainerPort, "Protocol": "tcp"},
				},
				"LogConfiguration": map[string]interface{}{
					"LogDriver": "awslogs",
					"Options": map[string]interface{}{
						"awslogs-group":         model.Ref(logGroupID),
						"awslogs-stream-prefix": props.Name,
						"awslogs-region":        model.Ref(model.AWSRegion),
					},
				},
			},
		},
	})
	if policyID := h.ExecutionRole.PolicyID(); policyID != "" {
		taskDef.DependsOn = append(taskDef.DependsOn, policyID)
	}

	lbScope := scope.Child("LB")
	lbSGID, _ := lbScope.AddResource("SecurityGroup", "AWS::EC2::SecurityGroup", map[string]interface{}{
		"GroupDescription": fmt.Sprintf("Load balancer for %s", props.Name),
		"VpcId":            model.Ref(cluster.VpcID),
		"SecurityGroupIngress": []interface{}{
			map[string]interface{}{
				"CidrIp":      "0.0.0.0/0",
				"IpProtocol":  "tcp",
				"FromPort":    props.ListenerPort,
				"ToPort":      props.ListenerPort,
				"Description": "Allow from anyone on the listener port",
			},
		},
	})

	svcScope := scope.Child("Service")
	svcSGID, _ := svcScope.AddResource("SecurityGroup", "AWS::EC2::SecurityGroup", map[string]interface{}{
		"GroupDescription": fmt.Sprintf("Tasks of %s", props.Name),
		"VpcId":            model.Ref(cluster.VpcID),
	})
	svcScope.AddResource("IngressFromLB", "AWS::EC2::SecurityGroupIngress", map[string]interface{}{
		"GroupId":               model.GetAtt(svcSGID, "GroupId"),
		"SourceSecurityGroupId": model.GetAtt(lbSGID, "GroupId"),
		"IpProtocol":            "tcp",
		"FromPort":              props.ContainerPort,
		"ToPort":                props.ContainerPort,
		"Description":           "Load balancer to target",
	})

	lbID, lb := scope.AddResource("LB", "AWS::ElasticLoadBalancingV2::LoadBalancer", map[string]interface{}{
		"Type":           "application",
		"Scheme":         "internet-facing",
		"Subnets":        refs(cluster.PublicSubnets),
		"SecurityGroups": []interface{}{model.GetAtt(lbSGID, "GroupId")},
	})
	lb.DependsOn = append(lb.DependsOn, cluster.PublicRoutes...)

	tgProps := map[string]interface{}{
		"Protocol":        "HTTP",
		"ProtocolVersion": "GRPC",
		"Port":            props.ContainerPort,
		"TargetType":      "ip",
		"VpcId":           model.Ref(cluster.VpcID),
		"HealthCheckPath": props.HealthCheckPath,
		"Matcher":         map[string]interface{}{"GrpcCode": props.GRPCSuccessCode},
	}
	if props.HealthInterval > 0 {
		tgProps["HealthCheckIntervalSeconds"] = int(props.HealthInterval / time.Second)
	}
	tgID, _ := lbScope.AddResource("TargetGroup", "AWS::ElasticLoadBalancingV2::TargetGroup", tgProps)

	listenerID, _ := lbScope.AddResource("Listener", "AWS::ElasticLoadBalancingV2::Listener", map[string]interface{}{
		"LoadBalancerArn": model.Ref(lbID),
		"Port":            props.ListenerPort,
		"Protocol":        "HTTPS",
		"Certificates": []interface{}{
			map[string]interface{}{"CertificateArn": model.Ref(h.CertificateID)},
		},
		"DefaultActions": []interface{}{
			map[string]interface{}{"Type": "forward", "TargetGroupArn": model.Ref(tgID)},
		},
	})

	var svc *model.Resource
	h.ServiceID, svc = scope.AddResource("Service", "AWS::ECS::Service", map[string]interface{}{
		"ServiceName":    props.Name,
		"Cluster":        cluster.ClusterRef(),
		"TaskDefinition": model.Ref(h.TaskDefinition),
		"LaunchType":     "FARGATE",
		"DesiredCount":   props.Autoscaling.MinCapacity,
		"DeploymentConfiguration": map[string]interface{}{
			"MaximumPercent":        200,
			"MinimumHealthyPercent": 50,
			"DeploymentCircuitBreaker": map[string]interface{}{
				"Enable":   true,
				"Rollback": true,
			},
		},
		"NetworkConfiguration": map[string]interface{}{
			"AwsvpcConfiguration": map[string]interface{}{
				"AssignPublicIp": "DISABLED",
				"Subnets":        refs(cluster.PrivateSubnets),
				"SecurityGroups": []interface{}{model.GetAtt(svcSGID, "GroupId")},
			},
		},
		"LoadBalancers": []interface{}{
			map[string]interface{}{
				"ContainerName":  props.ContainerName,
				"ContainerPort":  props.ContainerPort,
				"TargetGroupArn": model.Ref(tgID),
			},
		},
		"HealthCheckGracePeriodSeconds": 60,
	})
	svc.DependsOn = append(svc.DependsOn, listenerID)

	scope.AddResource("DNS", "AWS::Route53::RecordSet", map[string]interface{}{
		"Name":         props.DomainName + ".",
		"Type":         "A",
		"HostedZoneId": cluster.Zone.ID,
		"AliasTarget": map[string]interface{}{
			"DNSName":      model.Join("", "dualstack.", model.GetAtt(lbID, "DNSName")),
			"HostedZoneId": model.GetAtt(lbID, "CanonicalHostedZoneID"),
		},
	})

	addAutoscaling(scope.Child("TaskCount"), h, cluster, props.Autoscaling)

	scope.AddOutput("ContainerName", "Container the pipeline deploys to", props.ContainerName)
	scope.AddOutput("ServiceUrl", "Public endpoint of the service", "https://"+props.DomainName)
	scope.AddOutput("LoadBalancerDNS", "Load balancer DNS name", model.GetAtt(lbID, "DNSName"))

	return h, nil
}

func addAutoscaling(scope Scope, h *ServiceHandle, cluster *NetworkCluster, a AutoscalingProps) {
	targetID, _ := scope.AddResource("Target", "AWS::ApplicationAutoScaling::ScalableTarget", map[string]interface{}{
		"ServiceNamespace":  "ecs",
		"ScalableDimension": "ecs:service:DesiredCount",
		"MinCapacity":       a.MinCapacity,
		"MaxCapacity":       a.MaxCapacity,
		"ResourceId":        model.Join("/", "service", cluster.ClusterRef(), h.ServiceName()),
		"RoleARN":           arnSub("iam::${AWS::AccountId}:role/aws-service-role/ecs.application-autoscaling.amazonaws.com/AWSServiceRoleForApplicationAutoScaling_ECSService"),
	})

	scope.Child("Target").AddResource("CpuScaling", "AWS::ApplicationAutoScaling::ScalingPolicy", map[string]interface{}{
		"PolicyName":      scope.LogicalID("CpuScaling"),
		"PolicyType":      "TargetTrackingScaling",
		"ScalingTargetId": model.Ref(targetID),
		"TargetTrackingScalingPolicyConfiguration": map[string]interface{}{
			"PredefinedMetricSpecification": map[string]interface{}{
				"PredefinedMetricType": "ECSServiceAverageCPUUtilization",
			},
			"TargetValue":      a.TargetCPUPercent,
			"ScaleInCooldown":  int(a.ScaleInCooldown / time.Second),
			"ScaleOutCooldown": int(a.ScaleOutCooldown / time.Second),
		},
	})
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s must be within 1..65535, got %d", ErrInvalidProps, field, port)
	}
	return nil
}
