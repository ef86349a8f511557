package tally

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"asistencia/internal/queue"
)

// retention bounds how long a day's counters stay in Redis.
const retention = 180 * 24 * time.Hour

// Redis stores counters under <prefix><date> (check-in count) and
// <prefix><date>:students (set of student keys).
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "asistencia:tally:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Add(ctx context.Context, evt queue.AttendanceRecorded) error {
	day := DateKey(evt.CheckInTime)
	countKey, setKey := r.prefix+day, r.prefix+day+":students"
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, countKey)
		p.SAdd(ctx, setKey, evt.StudentKey)
		p.Expire(ctx, countKey, retention)
		p.Expire(ctx, setKey, retention)
		return nil
	})
	return err
}

func (r *Redis) Summary(ctx context.Context, day time.Time) (Summary, error) {
	key := DateKey(day)
	s := Summary{Date: key}
	count, err := r.client.Get(ctx, r.prefix+key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Summary{}, err
	}
	students, err := r.client.SCard(ctx, r.prefix+key+":students").Result()
	if err != nil {
		return Summary{}, err
	}
	s.CheckIns = count
	s.Students = students
	return s, nil
}
