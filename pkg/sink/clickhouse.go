// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const clickhouseWriteTimeout = 10 * time.Second

const clickhouseInsert = `
	INSERT INTO gpu_samples (
		timestamp, gpu_index, gpu_name, vendor,
		temperature, utilization, memory_util,
		memory_used_mb, memory_total_mb, power_usage
	)
`

// ClickHouseConfig carries the connection settings for a ClickHouse sink.
type ClickHouseConfig struct {
	Addr     []string `json:"addr" yaml:"addr"`
	Database string   `json:"database" yaml:"database"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
}

// ClickHouse batches each poll cycle into one INSERT. Missing readings are
// written as NULL.
type ClickHouse struct {
	conn driver.Conn
}

// NewClickHouse opens and pings a ClickHouse connection.
func NewClickHouse(cfg ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Name() string { return "clickhouse" }

func (c *ClickHouse) WriteSamples(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), clickhouseWriteTimeout)
	defer cancel()

	batch, err := c.conn.PrepareBatch(ctx, clickhouseInsert)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, s := range samples {
		err := batch.Append(
			s.Time,
			uint16(s.GPUIndex),
			s.Record.Name,
			s.Record.Vendor.String(),
			s.Record.Temperature,
			s.Record.Utilization,
			s.Record.MemoryUtil,
			s.Record.MemoryUsedMB,
			s.Record.MemoryTotalMB,
			s.Record.PowerUsage,
		)
		if err != nil {
			return fmt.Errorf("append sample: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Close releases the connection.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
