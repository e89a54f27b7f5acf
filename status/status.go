package status

import (
	"context"
	"sync"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/PowerDNS/pbz/status/healthtracker"
	"github.com/PowerDNS/pbz/storage"
	"github.com/PowerDNS/pbz/utils"
)

type info struct {
	mu       sync.Mutex
	st       simpleblob.Interface
	list     simpleblob.BlobList
	listTime time.Time
	listErr  error
}

// Listing is the result of the last storage listing
type Listing struct {
	Containers simpleblob.BlobList
	Time       time.Time
	Err        error
}

var gi info

// SetStorage sets the storage the status page and container handler use
func SetStorage(st simpleblob.Interface) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.st = st
}

func getStorage() (simpleblob.Interface, error) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	if gi.st == nil {
		return nil, errors.New("no storage registered with status page")
	}
	return gi.st, nil
}

func setListing(list simpleblob.BlobList, err error) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	if err == nil {
		gi.list = list
	}
	gi.listTime = time.Now()
	gi.listErr = err
}

// LastListing returns the last listing made by PollStorage. On error the
// previous successful list is kept.
func LastListing() Listing {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	return Listing{
		Containers: gi.list,
		Time:       gi.listTime,
		Err:        gi.listErr,
	}
}

// PollStorage lists the containers in storage every interval until the
// context is canceled. The outcome of every attempt is reported to ht.
func PollStorage(ctx context.Context, interval time.Duration, timeout time.Duration, ht *healthtracker.HealthTracker) error {
	st, err := getStorage()
	if err != nil {
		return err
	}
	for {
		lctx, cancel := context.WithTimeout(ctx, timeout)
		t0 := time.Now()
		list, err := storage.List(lctx, st, "")
		cancel()
		setListing(list, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ht.AddFailure()
			logrus.WithError(err).Warn("Listing containers failed")
		} else {
			ht.AddSuccess()
			logrus.WithFields(logrus.Fields{
				"count":     len(list),
				"time_list": utils.TimeDiff(time.Now(), t0),
			}).Debug("Listed containers")
		}
		if err := utils.SleepContext(ctx, interval); err != nil {
			return err
		}
	}
}
