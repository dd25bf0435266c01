// Package repository provides a unit-of-work layer over a document collection.
//
// A [Repository] keeps an identity map of every document it created or
// loaded. Callers mutate returned documents in place and call
// [Repository.Save], which writes only documents whose serialized state
// differs from the state they were loaded in, plus documents that were never
// saved:
//
//	members := repository.New[Member](client, repository.DefaultConfig())
//	defer members.Close()
//
//	m := members.CreateNew()
//	m.Title = "Test Member"
//	if err := members.Save(ctx); err != nil {
//	    return err
//	}
//
//	m, err := members.GetByID(ctx, id)
//	m.Title = "Selected Member"
//	err = members.Save(ctx) // one replace; untouched documents are skipped
//
// # Documents
//
// Document types embed [Base] (or implement [Document]) and use json tags for
// field names. The modification date is the new-versus-saved signal: Save
// stamps it on every write.
//
// # Binding
//
// The database and collection default to the client's database and the
// document type name. [Repository.SetDatabaseName] and
// [Repository.SetCollectionName] rebind at runtime and clear all dirty-check
// baselines, so loading under one binding and saving under another copies
// documents between stores.
//
// # Read-only
//
// With Config.ReadOnly set, CreateNew, Add, Remove, Delete, DeleteWhere and
// Save do nothing and the identity map stays empty; reads still work.
//
// # Errors
//
//   - [store.ErrNotFound] - GetByID or GetSingle matched nothing
//   - [store.ErrNotUnique] - GetSingle matched several documents
//   - [ErrUnknownField] - filter or sort names a field the document lacks
//   - [ErrNotSupported] - Refresh
//   - [SaveError] - a write failed during Save; carries the document identity
package repository
