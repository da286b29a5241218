package domain

// DiffEntry is a single order add/update/remove inside a diff-orders message.
// A missing, empty or "0" Amount means the order left the book.
type DiffEntry struct {
	Side   OrderSide
	ID     string
	Price  string
	Amount string
}

// DiffMessage is one incremental order book update. Sequence numbers are
// consecutive per book; a message is applicable only when its sequence is
// exactly one greater than the sequence of the locally held book.
type DiffMessage struct {
	Sequence int64
	Entries  []DiffEntry
}
