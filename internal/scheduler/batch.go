package scheduler

type batchKey struct {
	appType     string
	consistency Consistency
}

// BatchSimilarEvents groups events by application kind and consistency
// level. Groups keep the order in which their first member appeared and
// members keep their relative order.
func BatchSimilarEvents(events []Event) [][]Event {
	if len(events) == 0 {
		return nil
	}
	index := make(map[batchKey]int)
	var batches [][]Event
	for _, ev := range events {
		k := batchKey{appType: ev.AppType, consistency: ev.Consistency}
		i, ok := index[k]
		if !ok {
			i = len(batches)
			index[k] = i
			batches = append(batches, nil)
		}
		batches[i] = append(batches[i], ev)
	}
	return batches
}
