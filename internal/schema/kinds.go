package schema

func columns(typ Type, names ...string) []Column {
	out := make([]Column, len(names))
	for i, name := range names {
		out[i] = Column{Name: name, Type: typ}
	}
	return out
}

func concat(parts ...[]Column) []Column {
	var out []Column
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// CPU is telegraf's cpu measurement: one row per core plus a "cpu-total" row.
func CPU() Schema {
	return Schema{
		Kind:     KindCPU,
		FileName: "cpu.csv",
		Columns: concat(
			columns(Float, "timestamp"),
			columns(Text, "measurement", "core_id", "cpu", "host", "physical_id"),
			columns(Float,
				"time_active", "time_guest", "time_guest_nice", "time_idle",
				"time_iowait", "time_irq", "time_nice", "time_softirq",
				"time_steal", "time_system", "time_user",
			),
		),
		Values: []string{ColumnUtilization},
	}
}

// Memory is telegraf's mem measurement. Agents on Linux omit the final
// write_back_tmp field, so it is accepted but not required.
func Memory() Schema {
	return Schema{
		Kind:     KindMemory,
		FileName: "mem.csv",
		Columns: concat(
			columns(Float, "timestamp"),
			columns(Text, "label", "node"),
			columns(Float,
				"active", "available", "available_percent", "buffered", "cached",
				"commit_limit", "committed_as", "dirty", "free", "high_free",
				"high_total", "huge_page_size", "huge_pages_free", "huge_pages_total",
				"inactive", "low_free", "low_total", "mapped", "page_tables",
				"shared", "slab", "sreclaimable", "sunreclaim", "swap_cached",
				"swap_free", "swap_total", "total", "used", "used_percent",
				"vmalloc_chunk", "vmalloc_total", "vmalloc_used", "wired",
				"write_back",
			),
		),
		Extra:       1,
		ExtraPrefix: "write_back_tmp",
		Values:      []string{ColumnUsedPercent},
	}
}

// Network is telegraf's net measurement. Protocol counters trail the named
// columns and vary in number between agent versions.
func Network() Schema {
	return Schema{
		Kind:     KindNetwork,
		FileName: "net.csv",
		Columns: concat(
			columns(Float, "timestamp"),
			columns(Text, "label", "node", "interface"),
			columns(Float, "bytes_sent", "bytes_recv"),
		),
		Extra:       100,
		ExtraPrefix: "misc",
		Values:      []string{ColumnSendRate, ColumnRecvRate},
	}
}

// Tick is the server tick duration scraped through jolokia.
func Tick() Schema {
	return Schema{
		Kind:     KindTick,
		FileName: "minecraft_tick_times.csv",
		Columns: concat(
			columns(Float, "timestamp"),
			columns(Text, "label", "node", "jolokia_endpoint"),
			columns(Float, "tick_duration_ms"),
		),
		Values: []string{ColumnTickDuration},
	}
}
