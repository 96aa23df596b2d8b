package blk

import "arcore/kernel"

// pollWaitFn is invoked between completion polls by the synchronous
// helpers. It is mocked by tests.
var pollWaitFn = func() {}

type syncWaker struct {
	done bool
	err  error
}

func (w *syncWaker) Wake(_ uint64, err error) bool {
	w.done, w.err = true, err
	return true
}

// ReadSync reads into buf and polls the transport until the request
// completes. It is used before the scheduler runs, for example to load the
// first task.
func (a *Adapter) ReadSync(sector uint64, buf []byte) error {
	return a.transferSync(RequestRead, sector, buf)
}

// WriteSync writes buf and polls the transport until the request completes.
func (a *Adapter) WriteSync(sector uint64, buf []byte) error {
	return a.transferSync(RequestWrite, sector, buf)
}

func (a *Adapter) transferSync(typ RequestType, sector uint64, buf []byte) error {
	var (
		w   syncWaker
		err *kernel.Error
	)

	if _, err = a.submit(typ, sector, buf, &w); err != nil {
		return err
	}

	for !w.done {
		if a.OnCompletionInterrupt() == 0 {
			pollWaitFn()
		}
	}

	return w.err
}
