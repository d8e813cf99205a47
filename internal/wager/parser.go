package wager

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

// Kind classifica um texto recebido do chat.
type Kind int

const (
	KindNone     Kind = iota // não é comando do jogo
	KindWager                // aposta
	KindActivate             // pedido de ativação da sala
	KindHistory              // histórico de rodadas
)

// Command é a forma canônica de um comando de chat já classificado.
// Para apostas NUMBER, Value guarda os dígitos nominados (1 a 6).
type Command struct {
	Kind     Kind
	Category ledger.Category
	Value    string
	Stake    int64
}

// Gramática de apostas:
//   /N1000, /L 1000, /C1000, /Le1000  -> SMALL/LARGE/EVEN/ODD
//   /S144 1000, /S 144 1000           -> NUMBER com dígitos nominados
var (
	reSimple       = regexp.MustCompile(`(?i)^/(le|n|l|c)\s*([0-9]+)$`)
	reNumberSpaced = regexp.MustCompile(`(?i)^/s\s*([0-9]{1,6})\s+([0-9]+)$`)
	reNumberJoined = regexp.MustCompile(`(?i)^/s([0-9]{1,6})\s*([0-9]+)$`)
)

var simpleCategories = map[string]ledger.Category{
	"n":  ledger.CategorySmall,
	"l":  ledger.CategoryLarge,
	"c":  ledger.CategoryEven,
	"le": ledger.CategoryOdd,
}

// Parse classifica o texto de uma mensagem de chat. Retorna false se o
// texto não casa com nenhum comando reconhecido.
func Parse(text string) (*Command, bool) {
	text = strings.TrimSpace(text)

	switch strings.ToLower(text) {
	case "/batdau":
		return &Command{Kind: KindActivate}, true
	case "/history":
		return &Command{Kind: KindHistory}, true
	}

	if m := reSimple.FindStringSubmatch(text); m != nil {
		return &Command{
			Kind:     KindWager,
			Category: simpleCategories[strings.ToLower(m[1])],
			Stake:    parseStake(m[2]),
		}, true
	}

	m := reNumberSpaced.FindStringSubmatch(text)
	if m == nil {
		m = reNumberJoined.FindStringSubmatch(text)
	}
	if m != nil {
		return &Command{
			Kind:     KindWager,
			Category: ledger.CategoryNumber,
			Value:    m[1],
			Stake:    parseStake(m[2]),
		}, true
	}

	return nil, false
}

// parseStake devolve 0 em overflow; o validador rejeita stake não
// positiva com motivo específico.
func parseStake(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
