package tele

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/blnet/helpers"
	tele_config "github.com/temoto/blnet/internal/tele/config"
	"github.com/temoto/blnet/log2"
)

const (
	mqttQos        = 1
	topicConnected = "c"
)

type transportMqtt struct {
	log     *log2.Log
	m       mqtt.Client
	mopt    *mqtt.ClientOptions
	timeout time.Duration

	topicPrefix    string
	topicConnected string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.log = log
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if teleConfig.LogDebug {
		mqtt.DEBUG = log
	}
	if teleConfig.Broker == "" {
		return errors.NotValidf("tele broker empty")
	}
	tlsconf, err := tlsConfig(teleConfig)
	if err != nil {
		return errors.Trace(err)
	}

	clientID := teleConfig.ClientIDOrDefault()
	self.topicPrefix = teleConfig.TopicPrefixOrDefault()
	self.topicConnected = fmt.Sprintf("%s/%s", self.topicPrefix, topicConnected)
	self.timeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, 60*time.Second)
	pingTimeout := helpers.IntSecondDefault(teleConfig.PingTimeoutSec, 30*time.Second)
	retryInterval := helpers.IntSecondDefault(teleConfig.ReconnectSec, 30*time.Second)

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.Broker).
		SetBinaryWill(self.topicConnected, []byte{0x00}, mqttQos, true).
		SetCleanSession(false).
		SetClientID(clientID).
		SetUsername(teleConfig.Username).
		SetPassword(teleConfig.Password).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOrderMatters(false).
		SetConnectRetryInterval(retryInterval).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler).
		SetConnectRetry(true).
		SetAutoReconnect(true)
	if tlsconf != nil {
		self.mopt.SetTLSConfig(tlsconf)
	}
	self.m = mqtt.NewClient(self.mopt)
	// with ConnectRetry token completes only after first successful connect
	token := self.m.Connect()
	if token.WaitTimeout(self.timeout) && token.Error() != nil {
		self.log.Errorf("mqtt connect broker=%s err=%v", teleConfig.Broker, token.Error())
	}
	return nil
}

func (self *transportMqtt) Publish(topic string, payload []byte) error {
	full := fmt.Sprintf("%s/%s", self.topicPrefix, topic)
	token := self.m.Publish(full, mqttQos, false, payload)
	if !token.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt publish topic=%s", full)
	}
	return errors.Annotatef(token.Error(), "mqtt publish topic=%s", full)
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	if self.m.IsConnected() {
		self.m.Publish(self.topicConnected, mqttQos, true, []byte{0x00}).WaitTimeout(time.Second)
	}
	self.m.Disconnect(uint(time.Second / time.Millisecond))
	self.log.Infof("mqtt disconnected")
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt connection lost err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connected")
	c.Publish(self.topicConnected, mqttQos, true, []byte{0x01})
}
