// Package analyzer provides the text analysis capability used by the
// orchestration core: query classification, term/topic/entity extraction,
// and summarization. The keyword implementation is deliberately simple and
// swappable for a real NLP model behind the same interface.
package analyzer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/meridian-cloud/contextd/internal/domain"
)

// Entity is a detected named entity.
type Entity struct {
	Name string
	Type string
}

// Analyzer is the text analysis contract consumed by the aggregator and
// coordinator.
type Analyzer interface {
	Terms(text string) []string
	Topics(text string) []string
	Entities(text string) []Entity
	QueryType(text string) domain.QueryType
	Summarize(turns []domain.ConversationTurn) string
	HasDomainTerm(text string) bool
}

// profile holds per-language keyword lists. Language selection is
// configuration, not detection.
type profile struct {
	stopwords     map[string]bool
	questionWords map[string]bool
	commandVerbs  map[string]bool
}

var profiles = map[string]profile{
	"en": {
		stopwords: wordSet(
			"a", "an", "the", "is", "are", "was", "were", "be", "been",
			"i", "you", "he", "she", "it", "we", "they", "my", "your",
			"of", "in", "on", "at", "to", "for", "with", "and", "or",
			"but", "not", "no", "do", "does", "did", "have", "has", "had",
			"this", "that", "these", "those", "there", "here", "about",
		),
		questionWords: wordSet("what", "when", "where", "who", "why", "how", "which", "can", "could", "would", "should", "is", "are", "do", "does"),
		commandVerbs:  wordSet("cancel", "update", "change", "delete", "remove", "add", "create", "send", "schedule", "book", "reset", "stop", "start"),
	},
	"pt": {
		stopwords: wordSet(
			"o", "a", "os", "as", "um", "uma", "de", "do", "da", "dos", "das",
			"em", "no", "na", "nos", "nas", "por", "para", "com", "sem",
			"e", "ou", "mas", "que", "se", "eu", "voce", "ele", "ela",
			"meu", "minha", "seu", "sua", "isso", "isto", "aquilo", "sobre",
		),
		questionWords: wordSet("que", "qual", "quais", "quando", "onde", "quem", "porque", "como", "quanto", "quanta", "pode", "posso"),
		commandVerbs:  wordSet("cancelar", "atualizar", "mudar", "alterar", "deletar", "remover", "adicionar", "criar", "enviar", "agendar", "marcar", "resetar", "parar", "iniciar"),
	},
}

// Keyword is the keyword-list Analyzer implementation.
type Keyword struct {
	profile     profile
	domainTerms map[string]bool
}

// NewKeyword creates a keyword analyzer for the given language profile.
func NewKeyword(language string, domainTerms []string) (*Keyword, error) {
	p, ok := profiles[language]
	if !ok {
		return nil, fmt.Errorf("unsupported analyzer language %q: %w", language, domain.ErrValidation)
	}

	terms := make(map[string]bool, len(domainTerms))
	for _, t := range domainTerms {
		terms[strings.ToLower(t)] = true
	}

	return &Keyword{profile: p, domainTerms: terms}, nil
}

// Terms returns the significant lowercase terms of text: tokenized,
// stopwords removed, de-duplicated, input order preserved.
func (k *Keyword) Terms(text string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, tok := range tokenize(text) {
		if k.profile.stopwords[tok] || len(tok) < 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

// Topics returns the terms long enough to act as conversation topics.
func (k *Keyword) Topics(text string) []string {
	var topics []string
	for _, term := range k.Terms(text) {
		if len(term) >= 4 {
			topics = append(topics, term)
		}
	}
	return topics
}

// Entities detects capitalized token runs as named entities. Sentence-initial
// single words are skipped to cut false positives.
func (k *Keyword) Entities(text string) []Entity {
	words := strings.Fields(text)
	var entities []Entity
	seen := make(map[string]bool)

	for i := 0; i < len(words); i++ {
		if !isCapitalized(words[i]) {
			continue
		}
		j := i
		for j < len(words) && isCapitalized(words[j]) {
			j++
		}
		run := strings.Join(words[i:j], " ")
		run = strings.TrimFunc(run, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })

		// A lone capitalized word at the start of the text is most likely
		// just sentence case.
		if i == 0 && j-i == 1 {
			i = j
			continue
		}

		if run != "" && !seen[run] && !k.profile.stopwords[strings.ToLower(run)] {
			seen[run] = true
			entities = append(entities, Entity{Name: run, Type: "name"})
		}
		i = j
	}
	return entities
}

// QueryType classifies text as command, question, or statement.
func (k *Keyword) QueryType(text string) domain.QueryType {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return domain.QueryStatement
	}
	if k.profile.commandVerbs[tokens[0]] {
		return domain.QueryCommand
	}
	if strings.Contains(text, "?") || k.profile.questionWords[tokens[0]] {
		return domain.QueryQuestion
	}
	return domain.QueryStatement
}

// Summarize builds a compact summary of the retained turns: turn count,
// dominant topics, and the latest user message.
func (k *Keyword) Summarize(turns []domain.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}

	counts := make(map[string]int)
	var order []string
	for i := range turns {
		for _, topic := range k.Topics(turns[i].UserText) {
			if counts[topic] == 0 {
				order = append(order, topic)
			}
			counts[topic]++
		}
	}

	top := make([]string, 0, 5)
	for _, topic := range order {
		if counts[topic] >= 2 || len(turns) == 1 {
			top = append(top, topic)
		}
		if len(top) == 5 {
			break
		}
	}
	if len(top) == 0 && len(order) > 0 {
		top = order[:min(3, len(order))]
	}

	last := turns[len(turns)-1].UserText
	if len(last) > 120 {
		last = last[:120]
	}

	if len(top) == 0 {
		return fmt.Sprintf("%d turns; latest: %s", len(turns), last)
	}
	return fmt.Sprintf("%d turns about %s; latest: %s", len(turns), strings.Join(top, ", "), last)
}

// HasDomainTerm reports whether text contains a configured domain term.
func (k *Keyword) HasDomainTerm(text string) bool {
	for _, tok := range tokenize(text) {
		if k.domainTerms[tok] {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
