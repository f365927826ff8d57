package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MicroPulse/internal/domain/models"
	"MicroPulse/internal/domain/repository"
	pkgkafka "MicroPulse/pkg/kafka"
)

// Schema statements for the signals table, passed to the ClickHouse client
// at startup.
func SignalSchema(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ts DateTime64(3),
			engine LowCardinality(String),
			ticker LowCardinality(String),
			action LowCardinality(String),
			value Float64,
			reason String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMMDD(ts)
		ORDER BY (ticker, engine, ts)
		TTL toDateTime(ts) + INTERVAL 30 DAY`, table),
	}
}

// ClickHouseSignalStore implements SignalStore for ClickHouse.
type ClickHouseSignalStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseSignalStore creates ClickHouse signal storage.
func NewClickHouseSignalStore(db *sql.DB, table string) repository.SignalStore {
	return &ClickHouseSignalStore{db: db, table: table}
}

func (s *ClickHouseSignalStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseSignalStore) Store(ctx context.Context, sig *models.Signal) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, engine, ticker, action, value, reason) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		sig.Timestamp,
		sig.Engine,
		sig.Ticker,
		sig.Action,
		sig.Value,
		sig.Reason,
	)
	return err
}

// StoreBatch inserts signals in multi-row chunks to reduce round-trips.
func (s *ClickHouseSignalStore) StoreBatch(ctx context.Context, sigs []*models.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(sigs); start += chunkSize {
		end := start + chunkSize
		if end > len(sigs) {
			end = len(sigs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, sig := range sigs[start:end] {
			if sig == nil || sig.Engine == "" || sig.Ticker == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				sig.Timestamp,
				sig.Engine,
				sig.Ticker,
				sig.Action,
				sig.Value,
				sig.Reason,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, engine, ticker, action, value, reason) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseSignalStore) Query(ctx context.Context, ticker, engine string, from, to time.Time, limit int) ([]*models.Signal, error) {
	q := fmt.Sprintf("SELECT ts, engine, ticker, action, value, reason FROM %s WHERE ticker = ? AND ts >= ? AND ts <= ?", s.table)
	args := []interface{}{ticker, from, to}
	if engine != "" {
		q += " AND engine = ?"
		args = append(args, engine)
	}
	q += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []*models.Signal
	for rows.Next() {
		var sig models.Signal
		if err := rows.Scan(&sig.Timestamp, &sig.Engine, &sig.Ticker, &sig.Action, &sig.Value, &sig.Reason); err != nil {
			return nil, err
		}
		sigs = append(sigs, &sig)
	}
	return sigs, rows.Err()
}

func (s *ClickHouseSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSignalStore) Close() error {
	return nil // Managed by pkg
}

// KafkaSignalPublisher implements Publisher for Kafka.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSignalPublisher creates Kafka publisher.
func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, sig *models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(sig.Ticker), sig)
}

// PublishBatch sends multiple signals keyed by ticker for per-ticker ordering.
func (p *KafkaSignalPublisher) PublishBatch(ctx context.Context, sigs []*models.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(sigs))
	for i, sig := range sigs {
		msgs[i] = pkgkafka.Message{Key: []byte(sig.Ticker), Value: sig}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
