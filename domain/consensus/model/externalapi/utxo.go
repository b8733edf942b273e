package externalapi

// UTXOEntry is an unspent output.
type UTXOEntry struct {
	Amount     uint64
	Address    Address
	IsCoinbase bool
}

// Equal returns whether entry equals other.
func (entry *UTXOEntry) Equal(other *UTXOEntry) bool {
	if entry == nil || other == nil {
		return entry == other
	}
	return *entry == *other
}

// OutpointAndUTXOEntryPair is an outpoint along with its
// respective UTXO entry
type OutpointAndUTXOEntryPair struct {
	Outpoint  *DomainOutpoint
	UTXOEntry *UTXOEntry
}

// UTXODiff is the effect of a sequence of transactions on the UTXO set.
type UTXODiff struct {
	ToAdd    []*OutpointAndUTXOEntryPair
	ToRemove []*OutpointAndUTXOEntryPair
}

// Append adds the effect of other after the effect of diff. An entry added
// by diff and removed by other cancels out.
func (diff *UTXODiff) Append(other *UTXODiff) {
	for _, removed := range other.ToRemove {
		if index := indexOfOutpoint(diff.ToAdd, removed.Outpoint); index >= 0 {
			diff.ToAdd = append(diff.ToAdd[:index], diff.ToAdd[index+1:]...)
			continue
		}
		diff.ToRemove = append(diff.ToRemove, removed)
	}
	for _, added := range other.ToAdd {
		if index := indexOfOutpoint(diff.ToRemove, added.Outpoint); index >= 0 &&
			diff.ToRemove[index].UTXOEntry.Equal(added.UTXOEntry) {
			diff.ToRemove = append(diff.ToRemove[:index], diff.ToRemove[index+1:]...)
			continue
		}
		diff.ToAdd = append(diff.ToAdd, added)
	}
}

func indexOfOutpoint(pairs []*OutpointAndUTXOEntryPair, outpoint *DomainOutpoint) int {
	for i, pair := range pairs {
		if *pair.Outpoint == *outpoint {
			return i
		}
	}
	return -1
}
