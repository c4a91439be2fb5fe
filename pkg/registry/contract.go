package registry

// ContractInformation is a named contract with its per-network bindings.
type ContractInformation struct {
	Name string

	// Details holds the contract's bindings; a network may have several
	Details []NetworkContract

	// ABI is the raw JSON ABI text
	ABI string

	// ReorgSafeDistance marks contracts whose events are only final after a confirmation depth
	ReorgSafeDistance bool
}

// DetailsForNetwork returns the first binding for network, or nil.
func (c *ContractInformation) DetailsForNetwork(network string) *NetworkContract {
	for i := range c.Details {
		if c.Details[i].Network == network {
			return &c.Details[i]
		}
	}
	return nil
}

// NetworkDetails returns every binding for network, in configuration order.
func (c *ContractInformation) NetworkDetails(network string) []*NetworkContract {
	var details []*NetworkContract
	for i := range c.Details {
		if c.Details[i].Network == network {
			details = append(details, &c.Details[i])
		}
	}
	return details
}

func (c ContractInformation) clone() ContractInformation {
	details := make([]NetworkContract, len(c.Details))
	copy(details, c.Details)
	c.Details = details
	return c
}
