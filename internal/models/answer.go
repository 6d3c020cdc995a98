package models

// AnswerStatus tells how the model output was interpreted.
type AnswerStatus string

const (
	// StatusOK means every expected key was present and well typed.
	StatusOK AnswerStatus = "ok"
	// StatusIncomplete means the output was a JSON object but one or more
	// keys were missing or had the wrong type; defaults were used.
	StatusIncomplete AnswerStatus = "incomplete"
	// StatusUnparsed means the output was not a JSON object and the raw
	// text is returned as the answer.
	StatusUnparsed AnswerStatus = "unparsed"
)

type Answer struct {
	Answer      string       `json:"answer"`
	Confidence  float64      `json:"confidence"`
	UsedContext []string     `json:"used_context"`
	Status      AnswerStatus `json:"status"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a chat session's history. Answer is set on
// assistant turns that came back from the pipeline, Err on turns that
// failed.
type Turn struct {
	Role    Role
	Content string
	Answer  *Answer
	Err     error
}
