// Package tables registers the refresh datasets with the core registry.
// Import this package to ensure all datasets are registered.
package tables

// Each dataset file uses init() to register its definition. Order in the
// daily refresh comes from TableInfo.Order: providers, entities, credentials.
