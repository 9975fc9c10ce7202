package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifySkipsCleanPass(t *testing.T) {
	mockClient := NewMockSNSClient()
	notifier := &SNSNotifier{Client: mockClient, Topic: "mock-topic"}
	report := NewPassReport()
	report.AddTransferResult("home/a/b.txt", nil)
	report.AddSkipped()

	notifyErr := notifier.NotifyPassResults(SyncOptions{Bucket: "media-bucket"}, report)

	assert.Nil(t, notifyErr)
	assert.Len(t, mockClient.Requests, 0)
}

func TestNotifyPublishesFailures(t *testing.T) {
	mockClient := NewMockSNSClient()
	notifier := &SNSNotifier{Client: mockClient, Topic: "mock-topic"}
	report := NewPassReport()
	report.AddPrefixResult("home/", fmt.Errorf("AccessDenied"))
	report.AddTransferResult("home/a/b.txt", fmt.Errorf("connection reset"))
	report.AddBadSync("home/a/c.txt")
	opts := SyncOptions{
		LocalPath: "/data",
		Bucket:    "media-bucket",
		KeyPrefix: "home",
	}

	notifyErr := notifier.NotifyPassResults(opts, report)

	assert.Nil(t, notifyErr)
	assert.Len(t, mockClient.Requests, 1)
	published := mockClient.Requests[0]
	assert.Equal(t, "Sync Errors: /data -> s3://media-bucket/home", *published.Subject)
	assert.Equal(t, "mock-topic", *published.TopicArn)
	assert.Contains(t, *published.Message, "Action: Prefix\nKey: home/\nError: AccessDenied\n\n")
	assert.Contains(t, *published.Message, "Action: Upload\nKey: home/a/b.txt\nError: connection reset\n\n")
	assert.Contains(t, *published.Message, "Action: Verify\nKey: home/a/c.txt\nError: fingerprint mismatch after transfer\n\n")
}

func TestNotifyLabelsDownloadFailures(t *testing.T) {
	mockClient := NewMockSNSClient()
	notifier := &SNSNotifier{Client: mockClient, Topic: "mock-topic"}
	report := NewPassReport()
	report.AddTransferResult("home/a/b.txt", fmt.Errorf("NoSuchKey"))
	opts := SyncOptions{
		LocalPath:  "/data",
		Bucket:     "media-bucket",
		KeyPrefix:  "home",
		FromRemote: true,
	}

	notifyErr := notifier.NotifyPassResults(opts, report)

	assert.Nil(t, notifyErr)
	assert.Len(t, mockClient.Requests, 1)
	published := mockClient.Requests[0]
	assert.Equal(t, "Sync Errors: s3://media-bucket/home -> /data", *published.Subject)
	assert.Contains(t, *published.Message, "Action: Download\nKey: home/a/b.txt\nError: NoSuchKey\n\n")
}
