package chat

import "strings"

// StepSeparator joins the two phases of a persisted two-step message
const StepSeparator = "\n\n[STEP_SEPARATOR]\n\n"

// Serialize returns the stored content of a message and whether it is collapsible
func Serialize(m Message) (content string, collapsible bool) {
	collapsible = m.IsTwoStep && !m.IsError
	if collapsible && m.Step1Text != "" && m.Step2Text != "" {
		return m.Step1Text + StepSeparator + m.Step2Text, true
	}
	return m.Content, collapsible
}

// Restore rebuilds a message from its stored form
func Restore(role, content string, isError, isCollapsible bool) Message {
	m := Message{
		ID:      newID(),
		Role:    role,
		Content: content,
		IsError: isError,
	}
	if !isCollapsible || isError || role != RoleAssistant {
		return m
	}

	m.IsTwoStep = true
	if step1, step2, found := strings.Cut(content, StepSeparator); found {
		m.Step1Text = step1
		m.Step2Text = step2
		m.CurrentStep = Step2
		m.Content = step2
		return m
	}

	// Older records carry only one phase
	m.Step1Text = content
	m.CurrentStep = Step1
	return m
}
