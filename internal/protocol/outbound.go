package protocol

import (
	"encoding/json"
	"strings"
)

// Outbound message types.
const (
	TypeIdentify       = "identify"
	TypePing           = "ping"
	TypeLLMRequest     = "llm_request"
	TypeStopGeneration = "stop_generation"
	TypeTTSRequest     = "tts_request"
	TypeStopAudio      = "stop_audio"
	TypeSTTRequest     = "stt_request"
	TypeVADAudio       = "vad_audio"
)

// PingPadding is the filler sent with every ping so the round trip also
// measures upload throughput.
var PingPadding = strings.Repeat("a", 1024)

// Outbound is a message the client sends.
type Outbound interface {
	MessageType() string
}

// Identify binds the connection to a user.
type Identify struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// Ping is answered with a Pong echoing Timestamp.
type Ping struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
	TestData  string  `json:"testData"`
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest asks the server to generate a reply.
type LLMRequest struct {
	Type    string   `json:"type"`
	History []Turn   `json:"history"`
	Images  []string `json:"images"`
}

// StopGeneration cancels the reply being generated.
type StopGeneration struct {
	Type string `json:"type"`
}

// TTSRequest asks the server to speak text.
type TTSRequest struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StopAudio tells the server to stop streaming speech.
type StopAudio struct {
	Type string `json:"type"`
}

// STTRequest carries a recording to transcribe.
type STTRequest struct {
	Type       string `json:"type"`
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Format     string `json:"format"`
}

// VADAudio carries one frame of call audio.
type VADAudio struct {
	Type      string `json:"type"`
	AudioData string `json:"audio_data"`
}

func (Identify) MessageType() string       { return TypeIdentify }
func (Ping) MessageType() string           { return TypePing }
func (LLMRequest) MessageType() string     { return TypeLLMRequest }
func (StopGeneration) MessageType() string { return TypeStopGeneration }
func (TTSRequest) MessageType() string     { return TypeTTSRequest }
func (StopAudio) MessageType() string      { return TypeStopAudio }
func (STTRequest) MessageType() string     { return TypeSTTRequest }
func (VADAudio) MessageType() string       { return TypeVADAudio }

// NewIdentify builds an identify message.
func NewIdentify(userID string) Identify {
	return Identify{Type: TypeIdentify, UserID: userID}
}

// NewPing builds a ping stamped with ts milliseconds.
func NewPing(ts float64) Ping {
	return Ping{Type: TypePing, Timestamp: ts, TestData: PingPadding}
}

// NewLLMRequest builds a generation request.
func NewLLMRequest(history []Turn, images []string) LLMRequest {
	if len(images) == 0 {
		images = nil
	}
	return LLMRequest{Type: TypeLLMRequest, History: history, Images: images}
}

// NewStopGeneration builds a stop_generation message.
func NewStopGeneration() StopGeneration {
	return StopGeneration{Type: TypeStopGeneration}
}

// NewTTSRequest builds a tts_request message.
func NewTTSRequest(text string) TTSRequest {
	return TTSRequest{Type: TypeTTSRequest, Text: text}
}

// NewStopAudio builds a stop_audio message.
func NewStopAudio() StopAudio {
	return StopAudio{Type: TypeStopAudio}
}

// STT upload formats.
const (
	FormatPCM16 = "pcm16"
	FormatBlob  = "blob"
)

// NewSTTRequest builds a transcription request for base64 PCM16 at rate.
func NewSTTRequest(audio string, rate int) STTRequest {
	return STTRequest{Type: TypeSTTRequest, AudioData: audio, SampleRate: rate, Format: FormatPCM16}
}

// NewSTTBlobRequest builds a transcription request for an encoded recording
// the client could not turn into PCM itself.
func NewSTTBlobRequest(audio string) STTRequest {
	return STTRequest{Type: TypeSTTRequest, AudioData: audio, Format: FormatBlob}
}

// NewVADAudio builds a call audio frame.
func NewVADAudio(audio string) VADAudio {
	return VADAudio{Type: TypeVADAudio, AudioData: audio}
}

// Encode marshals an outbound message.
func Encode(m Outbound) ([]byte, error) {
	return json.Marshal(m)
}
