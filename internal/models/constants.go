package models

const (
	// RefusalAnswer is returned verbatim when the context does not hold the answer.
	RefusalAnswer = "The information is not available in the provided document."

	// AnswerParseError is the answer placeholder used when the model's JSON has no answer key.
	AnswerParseError = "Error parsing response"

	ContextSeparator = "\n\n"

	SystemPromptTemplate = `You are a strict Retrieval-Augmented Generation (RAG) assistant.
You must answer the user's question using ONLY the provided context.
If the answer does not exist in the context, say:
'%s'
Do not add any external knowledge.

You MUST return your response in valid JSON format with the following keys:
- "answer": The string answer.
- "confidence": A float between 0 and 1 indicating confidence.
- "used_context": A list of strings containing the specific chunks used to answer.

Context:
%s
`
)
