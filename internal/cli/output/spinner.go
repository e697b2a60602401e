package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner animates a message while a long operation runs.
type Spinner struct {
	w       io.Writer
	message string
	frames  []string
	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

// NewSpinner creates a spinner.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:       w,
		message: message,
		frames:  []string{"|", "/", "-", "\\"},
		done:    make(chan struct{}),
	}
}

// Start starts the animation.
func (s *Spinner) Start() {
	s.stopped.Add(1)
	go func() {
		defer s.stopped.Done()
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", s.frames[i%len(s.frames)], s.message)
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the animation and clears the line. Later calls do nothing.
func (s *Spinner) Stop() {
	s.finish("\r\033[K")
}

// Success ends the animation with a success line.
func (s *Spinner) Success(message string) {
	s.finish("\r\033[Kok " + message + "\n")
}

// Fail ends the animation with a failure line.
func (s *Spinner) Fail(message string) {
	s.finish("\r\033[Kfailed " + message + "\n")
}

func (s *Spinner) finish(final string) {
	s.once.Do(func() {
		close(s.done)
		s.stopped.Wait()
		fmt.Fprint(s.w, final)
	})
}
