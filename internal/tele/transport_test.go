package tele

import (
	"context"
	"testing"
	"time"

	"github.com/256dpi/gomqtt/broker"
	"github.com/256dpi/gomqtt/transport"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele_config "github.com/temoto/blnet/internal/tele/config"
	"github.com/temoto/blnet/log2"
)

const testTimeout = 5 * time.Second

func startMqttBroker(t testing.TB) string {
	server, err := transport.Launch("tcp://127.0.0.1:0")
	require.NoError(t, err)
	engine := broker.NewEngine(broker.NewMemoryBackend())
	engine.Accept(server)
	t.Cleanup(func() {
		_ = server.Close()
		engine.Close()
	})
	return "tcp://" + server.Addr().String()
}

type mqttReceived struct {
	topic   string
	payload []byte
}

// nextTopic skips messages on other topics.
func nextTopic(t testing.TB, ch <-chan mqttReceived, topic string) []byte {
	t.Helper()
	timeout := time.After(testTimeout)
	for {
		select {
		case m := <-ch:
			if m.topic == topic {
				return m.payload
			}
			t.Logf("skip topic=%s payload=%x", m.topic, m.payload)
		case <-timeout:
			t.Fatalf("no message topic=%s", topic)
			return nil
		}
	}
}

func TestTransportMqtt(t *testing.T) {
	// not Parallel: paho loggers are package globals
	log := log2.NewTest(t, log2.LDebug)
	brokerURL := startMqttBroker(t)

	ch := make(chan mqttReceived, 16)
	mon := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID("monitor"))
	token := mon.Connect()
	require.True(t, token.WaitTimeout(testTimeout))
	require.NoError(t, token.Error())
	defer mon.Disconnect(100)
	token = mon.Subscribe("blnet-test/#", mqttQos, func(_ mqtt.Client, m mqtt.Message) {
		ch <- mqttReceived{topic: m.Topic(), payload: m.Payload()}
	})
	require.True(t, token.WaitTimeout(testTimeout))
	require.NoError(t, token.Error())

	tl := New()
	require.NoError(t, tl.Init(context.Background(), log, tele_config.Config{
		Enabled:           true,
		Transport:         tele_config.TransportMQTT,
		Broker:            brokerURL,
		ClientID:          "blnet-test-1",
		TopicPrefix:       "blnet-test",
		NetworkTimeoutSec: 5,
		LogDebug:          true,
	}))
	assert.Equal(t, []byte{0x01}, nextTopic(t, ch, "blnet-test/c"))

	require.NoError(t, tl.Send(NewMessage(SourceLatest, 0, time.Now(), nil)))
	s, err := UnmarshalMessage(nextTopic(t, ch, "blnet-test/dataset"))
	require.NoError(t, err)
	assert.Equal(t, "latest", s.Fields["source"].GetStringValue())
	assert.Equal(t, Stat{Sent: 1}, tl.Stat())

	tl.Close()
	assert.Equal(t, []byte{0x00}, nextTopic(t, ch, "blnet-test/c"))
}

func TestTransportNats(t *testing.T) {
	t.Parallel()
	// nats runs disconnect callback asynchronously after Close, test logger may be gone
	log := log2.NewStderr(log2.LError)
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   natsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	defer ns.Shutdown()
	require.True(t, ns.ReadyForConnections(testTimeout))

	mon, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer mon.Close()
	sub, err := mon.SubscribeSync("blnet-test.>")
	require.NoError(t, err)
	require.NoError(t, mon.Flush())

	tr := &transportNats{}
	require.NoError(t, tr.Init(context.Background(), log, tele_config.Config{
		Transport:         tele_config.TransportNATS,
		Broker:            ns.ClientURL(),
		TopicPrefix:       "blnet-test",
		NetworkTimeoutSec: 5,
	}))
	m := NewMessage(SourceMemory, 1, time.Now(), nil)
	b, err := m.Marshal()
	require.NoError(t, err)
	require.NoError(t, tr.Publish(TopicDataset, b))

	msg, err := sub.NextMsg(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "blnet-test.dataset", msg.Subject)
	s, err := UnmarshalMessage(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, m.ID.String(), s.Fields["id"].GetStringValue())

	tr.Close()
	assert.Error(t, tr.Publish(TopicDataset, b))
}
