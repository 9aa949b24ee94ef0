// Package prompt assembles the final LLM prompt for a chat turn and formats the
// model's reply for the chat widget.
package prompt

import (
	"strings"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

// LegacyBotName is the hardcoded name older saved templates still carry.
const LegacyBotName = "AI Assistant"

// DefaultBotName is used when a config carries an empty bot name.
const DefaultBotName = "Assistant"

// ContextHeading introduces the retrieval block in the default template.
const ContextHeading = "Relevant Info:"

const defaultTemplate = `You are {bot_name}, a friendly assistant answering questions about this business.
Answer using the information below. If it does not contain the answer, say so briefly and suggest how the user can get help.

` + ContextHeading + `
{context}

Question: {question}

Answer:`

var styleDirectives = map[model.ResponseStyle]string{
	model.StyleConcise:  "Keep answers short and to the point, ideally one to three sentences.",
	model.StyleBalanced: "Give clear, complete answers without unnecessary detail.",
	model.StyleDetailed: "Give thorough answers with relevant details and step-by-step explanations where helpful.",
	model.StyleCreative: "Answer in a warm, engaging and conversational tone while staying accurate.",
}

// StyleDirective returns the instruction for style; unknown styles get the balanced one.
func StyleDirective(style model.ResponseStyle) string {
	if d, ok := styleDirectives[style]; ok {
		return d
	}
	return styleDirectives[model.StyleBalanced]
}

// Input is everything a prompt is built from.
type Input struct {
	Config   model.BotConfig
	History  string
	Context  string
	Question string
	UserName string
}

// Builder composes prompts. The zero value builds prompts without a token budget.
type Builder struct {
	maxTokens int
	counter   TokenCounter
}

// NewBuilder creates a builder. A positive maxTokens trims the oldest history
// turns until the prompt fits.
func NewBuilder(maxTokens int, counter TokenCounter) *Builder {
	if counter == nil {
		counter = NewTokenCounter()
	}
	return &Builder{maxTokens: maxTokens, counter: counter}
}

// Build returns the final prompt.
func (b *Builder) Build(in Input) string {
	history := strings.TrimSpace(in.History)
	p := compose(in, history)
	if b == nil || b.maxTokens <= 0 || history == "" {
		return p
	}

	turns := splitTurns(history)
	for len(turns) > 0 && b.counter.Count(p) > b.maxTokens {
		turns = turns[1:]
		p = compose(in, strings.Join(turns, "\n\n"))
	}
	return p
}

// CountTokens counts text the way the budget does.
func (b *Builder) CountTokens(text string) int {
	if b == nil || b.counter == nil {
		return defaultCounter.Count(text)
	}
	return b.counter.Count(text)
}

// Build composes a prompt without a token budget.
func Build(in Input) string {
	return compose(in, strings.TrimSpace(in.History))
}

func compose(in Input, history string) string {
	botName := strings.TrimSpace(in.Config.BotName)
	if botName == "" {
		botName = DefaultBotName
	}

	tmpl := defaultTemplate
	if in.Config.PromptTemplate != nil && strings.TrimSpace(*in.Config.PromptTemplate) != "" {
		tmpl = *in.Config.PromptTemplate
	}
	tmpl = normalizeBotName(tmpl, botName)

	var sb strings.Builder

	sb.WriteString("You are ")
	sb.WriteString(botName)
	sb.WriteString(", a helpful assistant for this website.")
	if extra := strings.TrimSpace(in.Config.SystemInstructions); extra != "" {
		sb.WriteString("\n")
		sb.WriteString(normalizeBotName(extra, botName))
	}
	sb.WriteString("\n")
	sb.WriteString(StyleDirective(in.Config.ResponseStyle))
	sb.WriteString("\n\n")

	if history != "" {
		sb.WriteString("Previous conversation:\n")
		sb.WriteString(history)
		sb.WriteString("\n\n")
		sb.WriteString("Use the previous conversation to understand the current question. ")
		sb.WriteString("Resolve pronouns and references such as \"it\", \"that\" or \"they\" against what was discussed, ")
		sb.WriteString("and do not repeat information the user already has unless asked.\n\n")
	}

	if name := addressableName(in.UserName); name != "" {
		sb.WriteString("The user's name is ")
		sb.WriteString(name)
		sb.WriteString(". Address them by name where it feels natural.\n\n")
	}

	question := strings.TrimSpace(in.Question)
	if strings.TrimSpace(in.Context) != "" {
		sb.WriteString(fillTemplate(tmpl, in.Context, question))
	} else {
		sb.WriteString("User asks: ")
		sb.WriteString(question)
	}

	sb.WriteString("\n\n")
	sb.WriteString("Formatting rules: reply in plain text only. Do not use HTML tags, markdown code fences or code blocks. ")
	sb.WriteString("If the information above contains contact details such as phone numbers, email addresses or physical addresses relevant to the question, ")
	sb.WriteString("always include them exactly as written.")

	return sb.String()
}

func normalizeBotName(text, botName string) string {
	return strings.NewReplacer(
		"{bot_name}", botName,
		"{{bot_name}}", botName,
		LegacyBotName, botName,
	).Replace(text)
}

// fillTemplate substitutes {context} and {question}. A custom template that
// never mentions the question still gets it appended.
func fillTemplate(tmpl, context, question string) string {
	out := strings.NewReplacer(
		"{context}", context,
		"{question}", question,
	).Replace(tmpl)
	if !strings.Contains(tmpl, "{question}") {
		out += "\n\nQuestion: " + question
	}
	return out
}

func addressableName(name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", "user", "guest":
		return ""
	}
	return name
}

// splitTurns breaks a history block into its "Turn N:" blocks, oldest first.
func splitTurns(history string) []string {
	parts := strings.Split(history, "\n\nTurn ")
	for i := 1; i < len(parts); i++ {
		parts[i] = "Turn " + parts[i]
	}
	return parts
}
