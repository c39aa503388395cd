//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"idmask/internal/audit"
	"idmask/internal/platform/config"
	"idmask/internal/platform/kafka"
	"idmask/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	brokers []string
	topic   string
}

func TestKafkaSinkSuite(t *testing.T) {
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	rp := containers.GetManager().GetRedpanda(s.T())
	s.brokers = rp.Brokers
	s.topic = "idmask.audit.test"
}

func (s *KafkaSinkSuite) TestEventsReachTopic() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := kafka.NewProducer(config.Kafka{Brokers: s.brokers, AuditTopic: s.topic})
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, s.topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, s.topic, 1, 1), "second ensure is a no-op")

	pub := audit.NewPublisher(audit.NewKafkaSink(producer, s.topic))
	s.Require().NoError(pub.Emit(ctx, audit.Event{
		Type:      audit.EventSmartIDInitiated,
		Outcome:   audit.OutcomePending,
		Namespace: "identity",
		RequestID: "req-42",
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got audit.Event
	require.NoError(s.T(), json.Unmarshal(records[0].Value, &got))
	s.Equal(audit.EventSmartIDInitiated, got.Type)
	s.Equal("req-42", got.RequestID)
	s.Equal(string(audit.EventSmartIDInitiated), string(records[0].Key))
}
