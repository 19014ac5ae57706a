package object

// Queue is a FIFO of outbound messages. It is owned by a single object or
// tick and needs no locking.
type Queue struct {
	messages []Message
}

func (q *Queue) Push(m Message) {
	q.messages = append(q.messages, m)
}

func (q *Queue) PopFront() (Message, bool) {
	if len(q.messages) == 0 {
		return Message{}, false
	}
	m := q.messages[0]
	q.messages[0] = Message{}
	q.messages = q.messages[1:]
	return m, true
}

func (q *Queue) Len() int {
	return len(q.messages)
}

// Drain returns all queued messages in insertion order and empties the queue.
func (q *Queue) Drain() []Message {
	res := q.messages
	q.messages = nil
	return res
}

// MoveTo appends all messages of q to other, in order, and empties q.
func (q *Queue) MoveTo(other *Queue) {
	for m, ok := q.PopFront(); ok; m, ok = q.PopFront() {
		other.Push(m)
	}
}
