package rag

const (
	// rewriteInstruction turns the latest message into a question that can
	// be retrieved against without the chat history. It must not answer.
	rewriteInstruction = "Given a chat history and the latest user question " +
		"which might reference context in the chat history, " +
		"formulate a standalone question which can be understood " +
		"without the chat history. Do NOT answer the question, " +
		"just reformulate it if needed and otherwise return it as is."

	// answerInstruction grounds the answer in the retrieved context.
	answerInstruction = "You are an expert assistant for question-answering tasks. " +
		"Use the provided context to answer the question. " +
		"If you don't know the answer, just say that you don't know. " +
		"Keep the answer concise and use a maximum of three sentences."

	// titleInstruction produces a short conversation title.
	titleInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."

	// extractionInstruction pulls structured invoice fields out of the
	// retrieved context as bare JSON.
	extractionInstruction = "You are an expert extraction agent. " +
		"Your task is to extract relevant information from the provided context " +
		"and return it as a single JSON object with exactly these keys: " +
		`"invoice_id" (string or null), "vendor_name" (string or null), ` +
		`"invoice_date" (string or null), "total_amount" (number or null). ` +
		"Only extract data present in the context. Return only the JSON object, no other text."

	noContextNote = "No relevant document passages were retrieved for this question. " +
		"If you cannot answer from the conversation alone, say that you don't know."
)

// TitlePrompt asks for a short conversation title based on the opening
// message.
func TitlePrompt(basis string) string {
	return titleInstruction +
		"\n\nGenerate a very concise title (3-5 words maximum) for a conversation that starts with or is about: \"" + basis + "\"."
}
