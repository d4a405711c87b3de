package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the default prefix for environment overrides.
const EnvPrefix = "CSVINGEST"

// envBinding maps one dotted config key to a setter. Keys become environment
// variables by upper-casing and replacing "." with "_":
// scan.bytes_per_thread -> CSVINGEST_SCAN_BYTES_PER_THREAD.
type envBinding struct {
	key string
	set func(v *viper.Viper, key string, in *Ingest)
}

var envBindings = []envBinding{
	{"job", func(v *viper.Viper, k string, in *Ingest) { in.Job = v.GetString(k) }},
	{"source.paths", func(v *viper.Viper, k string, in *Ingest) { in.Source.Paths = splitList(v.GetString(k)) }},
	{"dialect.delimiter", func(v *viper.Viper, k string, in *Ingest) { in.Dialect.Delimiter = v.GetString(k) }},
	{"dialect.quote", func(v *viper.Viper, k string, in *Ingest) { in.Dialect.Quote = v.GetString(k) }},
	{"dialect.escape", func(v *viper.Viper, k string, in *Ingest) { in.Dialect.Escape = v.GetString(k) }},
	{"dialect.encoding", func(v *viper.Viper, k string, in *Ingest) { in.Dialect.Encoding = v.GetString(k) }},
	{"dialect.has_header", func(v *viper.Viper, k string, in *Ingest) { in.Dialect.HasHeader = boolPtr(v.GetBool(k)) }},
	{"dialect.quoted_newlines", func(v *viper.Viper, k string, in *Ingest) { in.Dialect.QuotedNewlines = v.GetBool(k) }},
	{"dialect.max_line_size", func(v *viper.Viper, k string, in *Ingest) { in.Dialect.MaxLineSize = v.GetInt(k) }},
	{"scan.parallel", func(v *viper.Viper, k string, in *Ingest) { in.Scan.Parallel = boolPtr(v.GetBool(k)) }},
	{"scan.threads", func(v *viper.Viper, k string, in *Ingest) { in.Scan.Threads = v.GetInt(k) }},
	{"scan.buffer_size", func(v *viper.Viper, k string, in *Ingest) { in.Scan.BufferSize = v.GetInt(k) }},
	{"scan.bytes_per_thread", func(v *viper.Viper, k string, in *Ingest) { in.Scan.BytesPerThread = v.GetInt(k) }},
	{"scan.ignore_errors", func(v *viper.Viper, k string, in *Ingest) { in.Scan.IgnoreErrors = v.GetBool(k) }},
	{"rejects.store", func(v *viper.Viper, k string, in *Ingest) { in.Rejects.Store = v.GetBool(k) }},
	{"rejects.table", func(v *viper.Viper, k string, in *Ingest) { in.Rejects.Table = v.GetString(k) }},
	{"rejects.scans_table", func(v *viper.Viper, k string, in *Ingest) { in.Rejects.ScansTable = v.GetString(k) }},
	{"rejects.limit", func(v *viper.Viper, k string, in *Ingest) { in.Rejects.Limit = v.GetInt(k) }},
	{"storage.kind", func(v *viper.Viper, k string, in *Ingest) { in.Storage.Kind = v.GetString(k) }},
	{"storage.db.dsn", func(v *viper.Viper, k string, in *Ingest) { in.Storage.DB.DSN = v.GetString(k) }},
	{"storage.db.table", func(v *viper.Viper, k string, in *Ingest) { in.Storage.DB.Table = v.GetString(k) }},
	{"runtime.batch_size", func(v *viper.Viper, k string, in *Ingest) { in.Runtime.BatchSize = v.GetInt(k) }},
	{"runtime.channel_buffer", func(v *viper.Viper, k string, in *Ingest) { in.Runtime.ChannelBuffer = v.GetInt(k) }},
	{"metrics.kind", func(v *viper.Viper, k string, in *Ingest) { in.Metrics.Kind = v.GetString(k) }},
}

// ApplyEnv overlays environment variables carrying prefix onto in and
// re-applies defaults so derived options stay consistent. An empty prefix
// uses EnvPrefix.
func ApplyEnv(prefix string, in *Ingest) error {
	if prefix == "" {
		prefix = EnvPrefix
	}
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, b := range envBindings {
		if err := v.BindEnv(b.key); err != nil {
			return fmt.Errorf("config: bind env %s: %w", b.key, err)
		}
		if v.IsSet(b.key) {
			b.set(v, b.key, in)
		}
	}
	in.ApplyDefaults()
	return nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
