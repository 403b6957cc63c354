package ledger

import (
	"math"
	"time"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

// BalanceTolerance: расхождение меньше этой величины отображается как «сходится».
// Сохранённое значение расхождения при этом не округляется.
const BalanceTolerance = 1.0

// Reconcile вычисляет итог закрытия смены. Функция чистая: входная смена не изменяется.
//
// Ожидаемый остаток в местной валюте равен начальной сумме минус выплаты за
// купленную валюту; других поступлений в эту кассу нет. Иностранная валюта
// только поступает, поэтому ожидается ровно накопленная сумма.
func Reconcile(shift model.Shift, countedLocal float64, countedForeign map[model.Currency]float64, closedAt time.Time) model.ClosedShift {
	snapshot := shift.Clone()
	expected := snapshot.StartAmount - snapshot.CurrencyPayouts

	closed := model.ClosedShift{
		Shift:                 snapshot,
		EndTime:               closedAt,
		FinalAmount:           countedLocal,
		PerCurrencyFinal:      make(map[model.Currency]float64),
		ExpectedAmount:        expected,
		PerCurrencyExpected:   make(map[model.Currency]float64),
		Difference:            countedLocal - expected,
		PerCurrencyDifference: make(map[model.Currency]float64),
	}

	for _, c := range model.ForeignCurrencies() {
		expectedForeign := snapshot.OnHand[c]
		counted := countedForeign[c]
		closed.PerCurrencyExpected[c] = expectedForeign
		closed.PerCurrencyFinal[c] = counted
		closed.PerCurrencyDifference[c] = counted - expectedForeign
	}

	return closed
}

// Classify возвращает производный статус расхождения.
func Classify(difference float64) model.ReconciliationStatus {
	switch {
	case math.Abs(difference) < BalanceTolerance:
		return model.StatusBalanced
	case difference > 0:
		return model.StatusOverage
	default:
		return model.StatusShortage
	}
}

// Statuses возвращает статусы сверки по каждой валюте, включая местную.
func Statuses(closed model.ClosedShift) map[model.Currency]model.ReconciliationStatus {
	out := map[model.Currency]model.ReconciliationStatus{
		model.LocalCurrency: Classify(closed.Difference),
	}
	for c, diff := range closed.PerCurrencyDifference {
		out[c] = Classify(diff)
	}
	return out
}
