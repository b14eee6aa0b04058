package main

import (
	"fmt"
	"strconv"

	"github.com/drpcorg/scenesync/checksum"
	"github.com/drpcorg/scenesync/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <store>",
	Short: "Print the objects of a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

var checksumCmd = &cobra.Command{
	Use:   "checksum <store> <object id>",
	Short: "Print the content checksum of a saved object",
	Long: `Print the Fletcher-64 checksum of a saved object's properties, skipping
metadata keys. It matches what the checksum console command prints for the
same object in a live session.`,
	Args: cobra.ExactArgs(2),
	RunE: runChecksum,
}

// stringIds is the reverse of a saved string table.
type stringIds map[string]uint32

func (t stringIds) GetStringTableId(s string) uint32 { return t[s] }

func openStore(dir string) (*store.Store, error) {
	return store.Open(dir, store.Options{}, logger())
}

func runDump(cmd *cobra.Command, args []string) error {
	st, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer st.Close()
	snap, err := st.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "session %s, %d objects, %d strings\n",
		st.SessionId(), len(snap.Objects), len(snap.Strings))
	for _, rec := range snap.Objects {
		_, _ = fmt.Fprintf(out, "#%d\t%s\tparent #%d[%d]\tcreator %d\tflags %x\n",
			rec.Id, rec.Type, rec.ParentId, rec.ChildIndex, rec.Creator, rec.Flags)
		if rec.Property != nil {
			_, _ = fmt.Fprintf(out, "\t%s\n", rec.Property.String())
		}
	}
	return nil
}

func runChecksum(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return errors.Wrapf(err, "object id %q", args[1])
	}
	st, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer st.Close()
	snap, err := st.Load()
	if err != nil {
		return err
	}
	rec, err := st.Object(uint32(id))
	if err != nil {
		return errors.Wrapf(err, "object #%d", id)
	}
	if rec.Property == nil {
		return errors.Errorf("object #%d has no properties", id)
	}
	table := make(stringIds, len(snap.Strings))
	for sid, str := range snap.Strings {
		table[str] = sid
	}
	sum := checksum.Fletcher64(rec.Property, table, checksum.SkipMetaKeys)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%016x\n", sum)
	return nil
}
