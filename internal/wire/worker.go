package wire

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

type workerFunc = func(t *tomb.Tomb, task any) error

// workerPool is a fixed-size pool of goroutines draining a shared task
// channel, the same shape the teacher's standalone worker pool uses,
// generalized from a connection-specific queue to any task type.
type workerPool struct {
	n     int
	tasks chan any
	work  workerFunc
}

func newWorkerPool(size int) workerPool {
	return workerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
	}
}

func (p *workerPool) addTask(task any) {
	p.tasks <- task
}

// setup keeps n workers alive for the tomb's lifetime, replacing any
// that return (each handleConnection call is one message's worth of
// work, so a worker finishing just means it is ready for the next task).
func (p *workerPool) setup(t *tomb.Tomb, work workerFunc) {
	p.work = work
	log.Info().Int("workers", p.n).Msg("starting wire worker pool")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < p.n {
				t.Go(func() error {
					err := p.worker(t)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (p *workerPool) worker(t *tomb.Tomb) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-p.tasks:
		if err := p.work(t, task); err != nil {
			log.Error().Err(err).Msg("wire worker exiting")
			return err
		}
	}
	return nil
}
