package pager

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/pocsag"
)

// Message is the JSON document published for every packet.
type Message struct {
	Timestamp int64    `json:"timestamp"`
	Frequency uint64   `json:"frequency"`
	Address   uint32   `json:"address"`
	Function  uint8    `json:"function"`
	Text      string   `json:"text,omitempty"`
	Errors    int      `json:"errors"`
	Degraded  bool     `json:"degraded,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Codewords []string `json:"codewords"`
}

func NewMessage(p pocsag.Packet, frequency uint64) Message {
	m := Message{
		Timestamp: p.Timestamp.Unix(),
		Frequency: frequency,
		Address:   p.Address,
		Function:  p.Function,
		Text:      p.Text(),
		Errors:    p.ErrorCount,
		Degraded:  p.Degraded(),
		Truncated: p.Truncated,
		Codewords: make([]string, 0, len(p.Codewords)),
	}
	for _, cw := range p.Codewords {
		m.Codewords = append(m.Codewords, fmt.Sprintf("%08X", cw))
	}
	return m
}

// Publisher forwards packets to an MQTT broker.
type Publisher struct {
	client    mqtt.Client
	topic     string
	qos       byte
	frequency func() uint64
}

func clientID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "rxcap_" + hex.EncodeToString(b)
}

func NewPublisher(conf config.MQTTConf, frequency func() uint64) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(clientID())
	if conf.Username != "" {
		opts.SetUsername(conf.Username)
	}
	if conf.Password != "" {
		opts.SetPassword(conf.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("[mqtt] Connected to %s", conf.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("[mqtt] Connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return newPublisher(client, conf, frequency), nil
}

func newPublisher(client mqtt.Client, conf config.MQTTConf, frequency func() uint64) *Publisher {
	if frequency == nil {
		frequency = func() uint64 { return 0 }
	}
	return &Publisher{
		client:    client,
		topic:     conf.Topic,
		qos:       byte(conf.QoS),
		frequency: frequency,
	}
}

// Publish does not wait for the broker; delivery errors are logged.
func (p *Publisher) Publish(pkt pocsag.Packet) error {
	payload, err := json.Marshal(NewMessage(pkt, p.frequency()))
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%d", p.topic, pkt.Address)
	token := p.client.Publish(topic, p.qos, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Warnf("[mqtt] Publish to %s failed: %v", topic, token.Error())
		}
	}()
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
