package questauth

import (
	"net/http"
	"sync"
)

// Observer receives session lifecycle notifications. Embed BaseObserver to
// implement only the methods you need.
type Observer interface {
	OnAuthorized()
	OnAuthorizeFailed(err error)
	OnSignedOut()
	OnRefreshed()
	// OnRequestFailed fires once for every failed call made through
	// Session.Execute, Execute or Go.
	OnRequestFailed(err error)
}

// BaseObserver is a no-op Observer.
type BaseObserver struct{}

func (BaseObserver) OnAuthorized()           {}
func (BaseObserver) OnAuthorizeFailed(error) {}
func (BaseObserver) OnSignedOut()            {}
func (BaseObserver) OnRefreshed()            {}
func (BaseObserver) OnRequestFailed(error)   {}

// RequestHook is called around every physical HTTP request, including
// refresh and revoke calls and each retry.
type RequestHook interface {
	BeforeRequest(req *http.Request)
	AfterResponse(req *http.Request, resp *RawResponse, err error)
}

// observers is the subscription list. Notifications run on a snapshot, in
// subscription order, outside the lock.
type observers struct {
	mu   sync.Mutex
	next int
	subs map[int]Observer
}

func (o *observers) add(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Observer)
	}
	id := o.next
	o.next++
	o.subs[id] = obs

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) each(fn func(Observer)) {
	o.mu.Lock()
	list := make([]Observer, 0, len(o.subs))
	for i := 0; i < o.next; i++ {
		if obs, ok := o.subs[i]; ok {
			list = append(list, obs)
		}
	}
	o.mu.Unlock()

	for _, obs := range list {
		fn(obs)
	}
}
