package construct

import (
	"fmt"

	"github.com/sourceplane/svcstack/internal/model"
)

// pipelineEvents are forwarded to chat
var pipelineEvents = []string{
	"codepipeline-pipeline-pipeline-execution-failed",
	"codepipeline-pipeline-pipeline-execution-succeeded",
	"codepipeline-pipeline-manual-approval-needed",
	"codepipeline-pipeline-action-execution-failed",
}

// NotificationProps configures chat notifications for pipeline events
type NotificationProps struct {
	SlackWorkspaceID string
	SlackChannelID   string
}

// Enabled reports whether a chat channel is configured
func (n NotificationProps) Enabled() bool {
	return n.SlackWorkspaceID != "" || n.SlackChannelID != ""
}

func addNotifications(scope Scope, def *PipelineDefinition, name string, props NotificationProps) error {
	if !props.Enabled() {
		return nil
	}
	if props.SlackWorkspaceID == "" || props.SlackChannelID == "" {
		return fmt.Errorf("%w: slack notifications need both workspace and channel IDs", ErrMissingConfig)
	}

	topicID, _ := scope.AddResource("Topic", "AWS::SNS::Topic", map[string]interface{}{
		"DisplayName": name + " pipeline events",
	})
	scope.AddResource("TopicPolicy", "AWS::SNS::TopicPolicy", map[string]interface{}{
		"Topics": []interface{}{model.Ref(topicID)},
		"PolicyDocument": map[string]interface{}{
			"Version": "2012-10-17",
			"Statement": []interface{}{
				map[string]interface{}{
					"Effect":    "Allow",
					"Principal": map[string]interface{}{"Service": "codestar-notifications.amazonaws.com"},
					"Action":    "sns:Publish",
					"Resource":  model.Ref(topicID),
				},
			},
		},
	})

	role := newRole(scope, "ChatbotRole", "chatbot.amazonaws.com",
		arnSub("iam::aws:policy/ReadOnlyAccess"),
	)
	role.AddToPolicy(PolicyStatement{
		Actions:   []string{"cloudwatch:Describe*", "cloudwatch:Get*", "cloudwatch:List*"},
		Resources: []interface{}{"*"},
	})

	scope.AddResource("SlackChannel", "AWS::Chatbot::SlackChannelConfiguration", map[string]interface{}{
		"ConfigurationName": name + "-slack",
		"IamRoleArn":        role.Arn(),
		"SlackWorkspaceId":  props.SlackWorkspaceID,
		"SlackChannelId":    props.SlackChannelID,
		"SnsTopicArns":      []interface{}{model.Ref(topicID)},
		"LoggingLevel":      "ERROR",
	})

	// events reach the channel through the topic it subscribes to
	events := make([]interface{}, len(pipelineEvents))
	for i, e := range pipelineEvents {
		events[i] = e
	}
	scope.AddResource("Rule", "AWS::CodeStarNotifications::NotificationRule", map[string]interface{}{
		"Name":         name + "-events",
		"DetailType":   "FULL",
		"Resource":     def.Arn(),
		"EventTypeIds": events,
		"Targets": []interface{}{
			map[string]interface{}{"TargetType": "SNS", "TargetAddress": model.Ref(topicID)},
		},
	})

	return nil
}
