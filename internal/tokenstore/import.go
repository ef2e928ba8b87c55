package tokenstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ImportSummary counts what ImportCSV did.
type ImportSummary struct {
	Issued  int
	Bound   int
	Skipped int
}

// ImportCSV loads a sheet export with a "Token" column and an optional
// "DeviceID" column. Existing tokens are skipped; rows carrying a device id
// are bound to it. A token whose binding cannot be written is removed again,
// so a later import retries the row instead of leaving it claimable.
func ImportCSV(ctx context.Context, store Store, r io.Reader) (ImportSummary, error) {
	var sum ImportSummary

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return sum, fmt.Errorf("read header: %w", err)
	}
	tokenCol, deviceCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "token":
			tokenCol = i
		case "deviceid", "device_id":
			deviceCol = i
		}
	}
	if tokenCol < 0 {
		return sum, errors.New("missing Token column")
	}

	now := time.Now()
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("read row: %w", err)
		}
		if tokenCol >= len(row) {
			sum.Skipped++
			continue
		}
		token := strings.TrimSpace(row[tokenCol])
		if token == "" {
			sum.Skipped++
			continue
		}

		if err := store.Issue(ctx, token); err != nil {
			if errors.Is(err, ErrTokenExists) {
				sum.Skipped++
				continue
			}
			return sum, err
		}
		sum.Issued++

		if deviceCol < 0 || deviceCol >= len(row) {
			continue
		}
		device := NormalizeDeviceID(row[deviceCol])
		if device == "" {
			continue
		}
		if _, err := store.Bind(ctx, token, device, now); err != nil {
			if errors.Is(err, ErrAlreadyBound) {
				continue
			}
			if derr := store.Delete(ctx, token); derr != nil {
				return sum, fmt.Errorf("bind %s: %w (rollback failed: %v)", token, err, derr)
			}
			sum.Issued--
			return sum, fmt.Errorf("bind %s: %w", token, err)
		}
		sum.Bound++
	}
	return sum, nil
}
