package processor

// SliceRecipients partitions an ordered recipient list into lots of at most
// lotSize, preserving order. Lot i holds recipients [i*lotSize, (i+1)*lotSize).
// The partition is deterministic so re-slicing the same list always produces
// the same lots.
func SliceRecipients(recipients []string, lotSize int) ([][]string, error) {
	if lotSize <= 0 {
		return nil, ErrInvalidConfiguration
	}

	lots := make([][]string, 0, (len(recipients)+lotSize-1)/lotSize)
	for start := 0; start < len(recipients); start += lotSize {
		end := start + lotSize
		if end > len(recipients) {
			end = len(recipients)
		}
		lots = append(lots, recipients[start:end])
	}
	return lots, nil
}
