// Package mqtt connects the controller to the supervisor's broker. Commands arrive under
// N/<base>/..., state is published retained under W/<base>/..., and a keepalive keeps the
// supervisor forwarding the subscribed paths.
package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/zone-heater/internal/command"
)

var ErrNotConnected = errors.New("mqtt not connected")

const (
	commandPrefix = "N/"
	publishPrefix = "W/"
)

// Config holds broker and topic settings.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`

	// BasePath is the installation root, e.g. signalk/<system id>/vessels/self/heater.
	BasePath string `json:"base_path"`
	SystemID string `json:"system_id"`
}

// CommandSuffixes are the topics subscribed under N/<base>/.
var CommandSuffixes = []string{
	"+" + command.TopicTargetSuffix,
	command.TopicToggle,
	command.TopicAutomation,
	command.TopicValveMode,
	command.TopicSensorRequest,
	command.TopicFirmwareUpdate,
}

// keepalivePaths are the paths the supervisor is asked to keep forwarding.
var keepalivePaths = []string{
	"+" + command.TopicTargetSuffix,
	command.TopicToggle,
	command.TopicAutomation,
	command.TopicValveMode,
}

func CommandTopics(base string) []string {
	topics := make([]string, 0, len(CommandSuffixes))
	for _, s := range CommandSuffixes {
		topics = append(topics, commandPrefix+base+"/"+s)
	}
	return topics
}

func PublishTopic(base, path string) string {
	return publishPrefix + base + "/" + path
}

func KeepaliveTopic(systemID string) string {
	return "R/signalk/" + systemID + "/keepalive"
}

// KeepalivePayload lists the subscribed paths relative to the system root.
func KeepalivePayload(base, systemID string) []byte {
	rel := strings.TrimPrefix(base, "signalk/"+systemID+"/")
	paths := make([]string, 0, len(keepalivePaths))
	for _, p := range keepalivePaths {
		paths = append(paths, rel+"/"+p)
	}
	b, _ := json.Marshal(paths)
	return b
}

// CommandSuffix strips the N/<base>/ prefix from an inbound topic.
func CommandSuffix(base, topic string) (string, bool) {
	prefix := commandPrefix + base + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, prefix), true
}

type payload struct {
	Value json.RawMessage `json:"value"`
	URL   *string         `json:"url"`
}

// DecodePayload turns a message body into a command value. JSON objects carry either a
// "value" or a "url" field; anything else is taken as bare text or a bare number.
func DecodePayload(b []byte) command.Value {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return command.Value{}
	}

	if b[0] == '{' {
		var p payload
		if err := json.Unmarshal(b, &p); err != nil {
			return command.Text(string(b))
		}
		if p.URL != nil {
			return command.Text(*p.URL)
		}
		return decodeScalar(p.Value)
	}

	return decodeScalar(json.RawMessage(b))
}

func decodeScalar(raw json.RawMessage) command.Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return command.Value{}
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return command.Number(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return command.Text(s)
	}

	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return command.Number(f)
	}
	return command.Text(string(raw))
}
