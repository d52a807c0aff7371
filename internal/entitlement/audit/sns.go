package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	awsclient "entitlement-workers/internal/common/aws"
	"entitlement-workers/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/patrickmn/go-cache"
)

// StatusUnavailable mirrors the checker status that triggers an alert.
const StatusUnavailable = "unavailable"

type SNSConfig struct {
	TopicARN string
	// Window suppresses repeat alerts for the same path and error code.
	Window         time.Duration
	BufferSize     int
	PublishTimeout time.Duration
}

// SNSAlerter publishes an alert when a decision failed closed because an upstream dependency
// was unavailable. Granted and denied decisions are ignored. Alerts are coalesced per
// path/errorCode for one window and published off the caller's path.
type SNSAlerter struct {
	publisher awsclient.Publisher
	cfg       SNSConfig
	logger    logger.Logger
	seen      *cache.Cache

	ch   chan Event
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewSNSAlerter(p awsclient.Publisher, cfg SNSConfig, log logger.Logger) *SNSAlerter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &SNSAlerter{
		publisher: p,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "audit-sns"}),
		seen:      cache.New(cfg.Window, 2*cfg.Window),
		ch:        make(chan Event, cfg.BufferSize),
		stop:      make(chan struct{}),
	}
}

func (a *SNSAlerter) Start() {
	a.wg.Add(1)
	go a.loop()
}

// Stop publishes queued alerts and waits for the loop, or for ctx to expire.
func (a *SNSAlerter) Stop(ctx context.Context) {
	a.once.Do(func() { close(a.stop) })
	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (a *SNSAlerter) Record(_ context.Context, ev Event) {
	if a.cfg.TopicARN == "" || ev.Status != StatusUnavailable {
		return
	}

	key := ev.Path + "|" + orUnknown(ev.ErrorCode)
	if err := a.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}

	select {
	case a.ch <- ev:
	default:
		a.logger.Warn("alert buffer full, dropping alert", map[string]interface{}{"eventId": ev.ID})
	}
}

func (a *SNSAlerter) loop() {
	defer a.wg.Done()
	for {
		select {
		case ev := <-a.ch:
			a.publish(ev)
		case <-a.stop:
			for {
				select {
				case ev := <-a.ch:
					a.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *SNSAlerter) publish(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PublishTimeout)
	defer cancel()

	_, err = a.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.cfg.TopicARN),
		Subject:  aws.String(fmt.Sprintf("entitlement %s check unavailable", ev.Path)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"errorCode": {DataType: aws.String("String"), StringValue: aws.String(orUnknown(ev.ErrorCode))},
		},
	})
	if err != nil {
		a.logger.Warn("failed to publish entitlement alert", map[string]interface{}{
			"eventId": ev.ID,
			"error":   err,
		})
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
