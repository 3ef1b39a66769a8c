// Generate Groth16 ProvingKey and VerifyingKey for every contract circuit
package keys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"golang.org/x/sync/errgroup"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/identity"
)

var (
	ErrMissingCircuit = errors.New("no keys for method")
	ErrIssuerMismatch = errors.New("keys were set up for another issuer")
)

// Circuit is one compiled contract method with its Groth16 key pair.
type Circuit struct {
	CS constraint.ConstraintSystem
	PK groth16.ProvingKey
	VK groth16.VerifyingKey
}

// Set holds the keys of every method. The initialize circuit is specific to Issuer.
type Set struct {
	Issuer identity.PublicKey

	mu       sync.RWMutex
	circuits map[circuits.Method]*Circuit
}

// Compile builds the constraint system of m.
func Compile(m circuits.Method, issuer identity.PublicKey) (constraint.ConstraintSystem, error) {
	x, y := issuer.Coordinates()
	circuit, err := circuits.Blank(m, x, y)
	if err != nil {
		return nil, err
	}
	cs, err := frontend.Compile(circuits.Curve.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("compile %s circuit: %w", m, err)
	}
	return cs, nil
}

// Setup compiles every circuit and runs the Groth16 setup, one goroutine per method.
func Setup(ctx context.Context, issuer identity.PublicKey, logger *slog.Logger) (*Set, error) {
	set := &Set{Issuer: issuer, circuits: make(map[circuits.Method]*Circuit)}

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range circuits.Methods() {
		m := m
		g.Go(func() error {
			logger.InfoContext(ctx, "compiling circuit", "method", m.String())
			cs, err := Compile(m, issuer)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			logger.InfoContext(ctx, "running groth16 setup", "method", m.String(), "constraints", cs.GetNbConstraints())
			pk, vk, err := groth16.Setup(cs)
			if err != nil {
				return fmt.Errorf("setup %s: %w", m, err)
			}
			set.put(m, &Circuit{CS: cs, PK: pk, VK: vk})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "groth16 key generation finished")
	return set, nil
}

func (s *Set) put(m circuits.Method, c *Circuit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuits[m] = c
}

// Get returns the keys of m.
func (s *Set) Get(m circuits.Method) (*Circuit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.circuits[m]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrMissingCircuit, m)
	}
	return c, nil
}

func pkPath(dir string, m circuits.Method) string {
	return filepath.Join(dir, m.String()+"_pk.bin")
}

func vkPath(dir string, m circuits.Method) string {
	return filepath.Join(dir, m.String()+"_vk.bin")
}

func issuerPath(dir string) string {
	return filepath.Join(dir, "issuer.txt")
}

// SolidityPath is where ExportSolidity writes the verifier contract of m.
func SolidityPath(dir string, m circuits.Method) string {
	name := m.String()
	return filepath.Join(dir, strings.ToUpper(name[:1])+name[1:]+"Verifier.sol")
}

// Save writes <method>_pk.bin and <method>_vk.bin for every method into dir, and the
// issuer the initialize circuit was compiled for into issuer.txt.
func (s *Set) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(issuerPath(dir), []byte(s.Issuer.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write issuer: %w", err)
	}
	for _, m := range circuits.Methods() {
		c, err := s.Get(m)
		if err != nil {
			return err
		}
		if err := writeTo(pkPath(dir, m), c.PK.WriteTo); err != nil {
			return fmt.Errorf("write %s pk: %w", m, err)
		}
		if err := writeTo(vkPath(dir, m), c.VK.WriteTo); err != nil {
			return fmt.Errorf("write %s vk: %w", m, err)
		}
	}
	return nil
}

// Load recompiles the circuits for issuer and reads their keys from dir. Keys saved for
// another issuer are refused with ErrIssuerMismatch.
func Load(dir string, issuer identity.PublicKey) (*Set, error) {
	raw, err := os.ReadFile(issuerPath(dir))
	if err != nil {
		return nil, fmt.Errorf("read issuer: %w", err)
	}
	saved, err := identity.ParsePublicKey(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("read issuer: %w", err)
	}
	if !saved.Equal(issuer) {
		return nil, fmt.Errorf("%w: %s", ErrIssuerMismatch, saved)
	}

	set := &Set{Issuer: issuer, circuits: make(map[circuits.Method]*Circuit)}
	for _, m := range circuits.Methods() {
		cs, err := Compile(m, issuer)
		if err != nil {
			return nil, err
		}
		pk := groth16.NewProvingKey(circuits.Curve)
		if err := readFrom(pkPath(dir, m), pk.ReadFrom); err != nil {
			return nil, fmt.Errorf("read %s pk: %w", m, err)
		}
		vk := groth16.NewVerifyingKey(circuits.Curve)
		if err := readFrom(vkPath(dir, m), vk.ReadFrom); err != nil {
			return nil, fmt.Errorf("read %s vk: %w", m, err)
		}
		set.put(m, &Circuit{CS: cs, PK: pk, VK: vk})
	}
	return set, nil
}

// ExportSolidity writes one Solidity verifier contract per method into dir.
func (s *Set) ExportSolidity(dir string) error {
	for _, m := range circuits.Methods() {
		c, err := s.Get(m)
		if err != nil {
			return err
		}
		f, err := os.Create(SolidityPath(dir, m))
		if err != nil {
			return fmt.Errorf("create %s verifier: %w", m, err)
		}
		err = c.VK.ExportSolidity(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("export %s verifier: %w", m, err)
		}
	}
	return nil
}

func writeTo(path string, write func(w io.Writer) (int64, error)) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readFrom(path string, read func(r io.Reader) (int64, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = read(f)
	return err
}
