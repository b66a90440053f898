package tsbuffer

import "github.com/telemetrygw/tsbuffer/internal/model"

// Sample is one decoded record handed back by ReadBulk/ReadNext: either a
// reconstructed TSD timestamp+value or a raw EVT (value, timestamp) pair.
type Sample = model.Sample
