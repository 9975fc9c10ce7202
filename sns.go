package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func NewSNSNotifier(appConfig AppConfig) (Notifier, error) {
	var notifier Notifier

	cfg, cfgErr := config.LoadDefaultConfig(context.TODO(),
		config.WithSharedConfigProfile(appConfig.Notify.Profile),
		config.WithRegion(appConfig.Notify.Region))

	if cfgErr != nil {
		return notifier, cfgErr
	}
	snsClient := &SNSClient{sns.NewFromConfig(cfg)}
	notifier = &SNSNotifier{Client: snsClient, Topic: appConfig.Notify.Topic}

	return notifier, nil
}

type SNSClientIface interface {
	PublishMessage(msg *sns.PublishInput) error
}

type SNSClient struct {
	Client *sns.Client
}

func (s *SNSClient) PublishMessage(msg *sns.PublishInput) error {
	_, publishErr := s.Client.Publish(context.TODO(), msg)
	return publishErr
}

type SNSNotifier struct {
	Client SNSClientIface
	Topic  string
}

type NotificationContext struct {
	Action string
	Key    string
	Error  error
}

func (s *SNSNotifier) NotifyPassResults(opts SyncOptions, report *PassReport) error {
	failures := make([]NotificationContext, 0)

	for key, err := range report.Prefixes {
		if err != nil {
			failures = append(failures, NotificationContext{
				Action: "Prefix",
				Key:    key,
				Error:  err,
			})
		}
	}

	transferAction := "Upload"
	if opts.FromRemote {
		transferAction = "Download"
	}
	for key, err := range report.Transfers {
		if err != nil {
			failures = append(failures, NotificationContext{
				Action: transferAction,
				Key:    key,
				Error:  err,
			})
		}
	}

	for _, key := range report.BadSync {
		failures = append(failures, NotificationContext{
			Action: "Verify",
			Key:    key,
			Error:  fmt.Errorf("fingerprint mismatch after transfer"),
		})
	}

	// if no errors we dont need to send any notification
	if len(failures) == 0 {
		return nil
	}

	// TODO: this has a maximum message size of 256KB, need to account for that
	notificationBody := ""
	for _, ctx := range failures {
		notificationBody += fmt.Sprintf(
			"Action: %s\nKey: %s\nError: %s\n\n",
			ctx.Action,
			ctx.Key,
			ctx.Error,
		)
	}

	snsPublishReq := &sns.PublishInput{
		Message:  aws.String(notificationBody),
		TopicArn: aws.String(s.Topic),
		Subject:  aws.String(fmt.Sprintf("Sync Errors: %s", describeSyncPair(opts))),
	}
	publishErr := s.Client.PublishMessage(snsPublishReq)

	return publishErr
}
