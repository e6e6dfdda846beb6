package usecase

import "encoding/json"

const (
	PayloadFrame   = "ESC_FRAME"
	PayloadCleared = "ESC_CLEARED"
)

// MQPayload wraps a message for the queue with its type, robot and
// recording session.
type MQPayload struct {
	Type    string      `json:"type"`
	Robot   string      `json:"robot"`
	Session string      `json:"session"`
	Data    interface{} `json:"data"`
}

// MarshalJSON copies the envelope fields into the data object as well, so
// consumers that only read "data" still see where it came from.
func (p MQPayload) MarshalJSON() ([]byte, error) {
	type plain MQPayload

	dataBytes, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}
	var dataMap map[string]interface{}
	if err := json.Unmarshal(dataBytes, &dataMap); err != nil || dataMap == nil {
		// 非对象类型, 不注入
		return json.Marshal(plain(p))
	}

	dataMap["msgType"] = p.Type
	dataMap["session"] = p.Session
	if _, ok := dataMap["robot"]; !ok {
		dataMap["robot"] = p.Robot
	}
	return json.Marshal(plain{
		Type:    p.Type,
		Robot:   p.Robot,
		Session: p.Session,
		Data:    dataMap,
	})
}
