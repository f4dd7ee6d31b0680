package supervisor

import "time"

// minCompact — минимальное число вытесненных элементов для уплотнения буфера.
const minCompact = 32

// timeWindow — упорядоченная по времени очередь отметок со скользящим окном.
//
// Append добавляет в хвост, PruneBefore удаляет из головы.
// Амортизированно O(1), память ограничена числом отметок внутри окна.
type timeWindow struct {
	items []time.Time
	head  int
}

// Append добавляет отметку. Отметки должны поступать в порядке времени.
func (w *timeWindow) Append(t time.Time) {
	w.items = append(w.items, t)
}

// PruneBefore удаляет отметки раньше cutoff.
func (w *timeWindow) PruneBefore(cutoff time.Time) {
	for w.head < len(w.items) && w.items[w.head].Before(cutoff) {
		w.items[w.head] = time.Time{}
		w.head++
	}

	if w.head == len(w.items) {
		w.items = w.items[:0]
		w.head = 0
		return
	}

	if w.head >= minCompact && w.head*2 >= len(w.items) {
		n := copy(w.items, w.items[w.head:])
		w.items = w.items[:n]
		w.head = 0
	}
}

// CountSince возвращает число отметок не раньше cutoff без изменения очереди.
func (w *timeWindow) CountSince(cutoff time.Time) int {
	n := 0
	for i := len(w.items) - 1; i >= w.head; i-- {
		if w.items[i].Before(cutoff) {
			break
		}
		n++
	}
	return n
}

// Len возвращает число отметок в очереди.
func (w *timeWindow) Len() int {
	return len(w.items) - w.head
}

// Last возвращает последнюю отметку.
func (w *timeWindow) Last() (time.Time, bool) {
	if w.Len() == 0 {
		return time.Time{}, false
	}
	return w.items[len(w.items)-1], true
}
