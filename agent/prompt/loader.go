package prompt

import (
	_ "embed"
	"strconv"
	"strings"
)

var (
	//go:embed template/chat.txt
	chatRaw string

	//go:embed template/sql.txt
	sqlRaw string

	//go:embed template/query_checker.txt
	checkerRaw string
)

// PromptSet holds rendered prompt content.
type PromptSet struct {
	Chat         string
	SQL          string
	QueryChecker string
}

// LoadPromptSet renders the embedded templates for the given locale and SQL settings.
func LoadPromptSet(locale Locale, dialect string, topK int) PromptSet {
	if strings.TrimSpace(dialect) == "" {
		dialect = "PostgreSQL"
	}
	if topK <= 0 {
		topK = 10
	}
	msgs := MessagesFor(locale)

	chat := strings.NewReplacer("{language}", msgs.LanguageName).Replace(chatRaw)
	sqlVars := strings.NewReplacer(
		"{dialect}", dialect,
		"{top_k}", strconv.Itoa(topK),
	)

	return PromptSet{
		Chat:         strings.TrimSpace(chat),
		SQL:          strings.TrimSpace(sqlVars.Replace(sqlRaw)),
		QueryChecker: strings.TrimSpace(sqlVars.Replace(checkerRaw)),
	}
}
