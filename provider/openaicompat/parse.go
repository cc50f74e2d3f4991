package openaicompat

// ParseResponse extracts the rendered text from choices[0] of an
// OpenAI-format ChatResponse.
func ParseResponse(resp ChatResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", nil
	}

	choice := resp.Choices[0]
	if choice.Message == nil {
		return "", nil
	}

	return choice.Message.Content, nil
}
