package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewModelID returns excel_<unix millis>_<8 random hex digits>. The random
// part comes from a v4 UUID, whose leading digits are all random bits.
func NewModelID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("excel_%d_%s", time.Now().UTC().UnixMilli(), random)
}
