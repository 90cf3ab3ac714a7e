package watcher

// step is the outcome of processing the record at the head of the buffer.
type step struct {
	consumed int
	// needMore asks for one supplementary read before retrying the record.
	needMore bool
	// discard drops the rest of the buffer after a rebuild.
	discard bool
}

// ProcessEvents performs one blocking read and applies every record in it.
func (engine *Engine) ProcessEvents() error {
	n, err := engine.channel.Read(engine.buf[:engine.readSize])
	if err != nil {
		return &WatchError{Op: "read", Err: err}
	}
	if n == 0 {
		return ErrEmptyRead
	}
	engine.readCount++
	engine.metrics.ObserveRead(n)
	engine.logger.Debug("read notification records", map[string]string{
		"read":  itoa(engine.readCount),
		"bytes": itoa(n),
	})

	pending := engine.buf[:n]
	offset := 0
	retried := false
	for offset < len(pending) {
		result, err := engine.processRecord(pending[offset:], retried)
		if err != nil {
			return err
		}
		switch {
		case result.discard:
			return nil
		case result.needMore:
			retried = true
			pending, err = engine.supplementaryRead(pending[offset:])
			if err != nil {
				return err
			}
			offset = 0
		default:
			retried = false
			offset += result.consumed
		}
	}
	return nil
}

// supplementaryRead moves the unconsumed tail to the start of the buffer
// and waits up to the rename window for more records behind it.
func (engine *Engine) supplementaryRead(tail []byte) ([]byte, error) {
	remaining := copy(engine.buf, tail)
	extra, err := engine.channel.ReadTimeout(engine.buf[remaining:], engine.renameWait)
	if err != nil {
		return nil, &WatchError{Op: "supplementary read", Err: err}
	}
	if extra > 0 {
		engine.readCount++
		engine.metrics.ObserveRead(extra)
		engine.metrics.ObserveSupplementaryRead("received")
		engine.logger.Debug("supplementary read", map[string]string{
			"read":  itoa(engine.readCount),
			"bytes": itoa(extra),
		})
	} else {
		engine.metrics.ObserveSupplementaryRead("timeout")
		engine.logger.Debug("supplementary read got nothing", nil)
	}
	return engine.buf[:remaining+extra], nil
}
