package output_storage

// Write implements io.Writer so an OutputStorage can be a child's Stdout/Stderr.
// It copies p (callers may reuse it). A nil receiver discards.
func (s *OutputStorage) Write(p []byte) (int, error) {
	if s == nil {
		return len(p), nil
	}
	if len(p) == 0 {
		return 0, nil
	}

	s.Append(append([]byte(nil), p...))

	return len(p), nil
}
