package prompt

import "strings"

type Locale string

const (
	LocalePTBR Locale = "pt-BR"
	LocaleEN   Locale = "en"
)

// Messages are the fixed user-facing strings for one locale.
type Messages struct {
	LanguageName      string
	Apology           string
	EmptyAnswer       string
	EmptyQuestion     string
	ToolFailurePrefix string
	StoppedByLimit    string
	PartialResult     string
	NotReady          string
}

var catalog = map[Locale]Messages{
	LocalePTBR: {
		LanguageName:      "Português do Brasil",
		Apology:           "Desculpe, tive um problema ao processar sua consulta.",
		EmptyAnswer:       "Não consegui gerar uma resposta. Pode reformular a pergunta?",
		EmptyQuestion:     "Por favor, envie uma pergunta.",
		ToolFailurePrefix: "Erro ao consultar o banco de dados: ",
		StoppedByLimit:    "A consulta foi interrompida por limite de tempo ou de iterações.",
		PartialResult:     "Resultado parcial: ",
		NotReady:          "Agente não inicializado",
	},
	LocaleEN: {
		LanguageName:      "English",
		Apology:           "Sorry, I encountered an error processing your request.",
		EmptyAnswer:       "I could not produce an answer. Could you rephrase the question?",
		EmptyQuestion:     "Please send a question.",
		ToolFailurePrefix: "Error querying the database: ",
		StoppedByLimit:    "Agent stopped due to iteration limit or time limit.",
		PartialResult:     "Partial result: ",
		NotReady:          "AI Agent not initialized",
	},
}

// ParseLocale accepts "pt", "pt-BR", "pt_br", "en", "en-US" and similar.
// Anything unknown maps to pt-BR.
func ParseLocale(raw string) Locale {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(v, "en"):
		return LocaleEN
	default:
		return LocalePTBR
	}
}

func MessagesFor(locale Locale) Messages {
	if m, ok := catalog[locale]; ok {
		return m
	}
	return catalog[LocalePTBR]
}
