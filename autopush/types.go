package autopush

type Status int

const (
	StatusOK          Status = 200
	StatusConflict    Status = 409
	StatusServerError Status = 500
)

type MessageType string

const (
	Ping         MessageType = "ping"
	AckType      MessageType = "ack"
	Hello        MessageType = "hello"
	Register     MessageType = "register"
	Unregister   MessageType = "unregister"
	Notification MessageType = "notification"
)

// Content codings a Notification may carry.
const (
	EncodingAES128GCM = "aes128gcm"
)

type Message struct {
	Type MessageType `json:"messageType"`
}

type HelloRequest struct {
	Type       MessageType `json:"messageType"`
	UAID       string      `json:"uaid"`
	ChannelIDs []string    `json:"channelIDs"`
	UseWebPush bool        `json:"use_webpush,omitempty"`
}

type HelloResponse struct {
	Type       MessageType `json:"messageType"`
	UAID       string      `json:"uaid"`
	Status     Status      `json:"status"`
	UseWebPush bool        `json:"use_webpush,omitempty"`
}

type RegisterRequest struct {
	Type      MessageType `json:"messageType"`
	ChannelID string      `json:"channelID"`
	Key       string      `json:"key,omitempty"`
}

type RegisterResponse struct {
	Type         MessageType `json:"messageType"`
	ChannelID    string      `json:"channelID"`
	Status       Status      `json:"status"`
	PushEndpoint string      `json:"pushEndpoint"`
}

type UnregisterRequest struct {
	Type      MessageType `json:"messageType"`
	ChannelID string      `json:"channelID"`
}

type UnregisterResponse struct {
	Type      MessageType `json:"messageType"`
	ChannelID string      `json:"channelID"`
	Status    Status      `json:"status"`
}

// PushNotification is a push message relayed by the service. Data is the
// base64url encoded encrypted body and is empty for a push without payload.
type PushNotification struct {
	Type      MessageType         `json:"messageType"`
	ChannelID string              `json:"channelID"`
	Version   string              `json:"version"`
	Data      string              `json:"data,omitempty"`
	Headers   NotificationHeaders `json:"headers,omitempty"`
}

type NotificationHeaders struct {
	Encryption string `json:"encryption,omitempty"`
	CryptoKey  string `json:"crypto_key,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

type Ack struct {
	Type    MessageType `json:"messageType"`
	Updates []AckUpdate `json:"updates"`
}

type AckUpdate struct {
	ChannelID string `json:"channelID"`
	Version   string `json:"version"`
}
