package engine

import (
	"math/rand"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

// GenerateOutcome sorteia os 6 dígitos de uma rodada, independentes e
// uniformes em 0-9. Pseudo-aleatório comum; não há requisito
// criptográfico aqui.
func GenerateOutcome() ledger.Digits {
	var d ledger.Digits
	for i := range d {
		d[i] = rand.Intn(10)
	}
	return d
}
