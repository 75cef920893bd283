package internal

import (
	"fmt"
	"time"
)

type Config struct {
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	DataCenters          int           `env:"DATACENTERS,required=true"`
	Host                 string        `env:"HOST,required=true"`
	BasePort             int           `env:"BASE_PORT,required=true"`
	DataDir              string        `env:"DATA_DIR"`
	ClusterSecret        string        `env:"CLUSTER_SECRET,required=true"`
	SignaturesFilepath   string        `env:"SIGNATURES_FILEPATH"`
	SessionID            string        `env:"SESSION_ID,required=true"`
	SessionHomeDC        int           `env:"SESSION_HOME_DC,required=true"`
	SessionFilepath      string        `env:"SESSION_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	ReportInterval       time.Duration `env:"REPORT_INTERVAL,required=true"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,required=true"`
	JanitorInterval      time.Duration `env:"JANITOR_INTERVAL,required=true"`
	StagingMaxAge        time.Duration `env:"STAGING_MAX_AGE,required=true"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,required=true"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
}

// ListenAddresses lays the data-centers out on consecutive ports starting at
// basePort, keyed by DC number.
func ListenAddresses(host string, basePort, dcs int) (map[int]string, error) {
	if dcs < 1 {
		return nil, fmt.Errorf("DATACENTERS must be at least 1, got %d", dcs)
	}
	if basePort < 1 || basePort+dcs-1 > 65535 {
		return nil, fmt.Errorf("BASE_PORT %d leaves no room for %d listeners", basePort, dcs)
	}
	addrs := make(map[int]string, dcs)
	for dc := 1; dc <= dcs; dc++ {
		addrs[dc] = fmt.Sprintf("%s:%d", host, basePort+dc-1)
	}
	return addrs, nil
}
