package admin

const pageTemplate = `<div class="container-fluid">
  <div class="page-header d-print-none">
    <div class="row align-items-center">
      <div class="col">
        <% if docname != "" { %><div class="page-pretitle"><%= escape(doctype) %></div><% } %>
        <div class="page-title"><%= escape(docname != "" ? docname : doctype) %></div>
      </div>
      <div class="col-auto ms-auto d-print-none">
        <div class="btn-list">
        <% if data.mode == "list" { %>
          <a href="#" class="btn btn-primary btn-icon btn-new" on:click="New"><i class="ti ti-plus"></i> <span>Create new <%= escape(doctype) %></span></a>
        <% } else { %>
          <a href="#" class="btn btn-secondary btn-icon btn-back" on:click="Back"><i class="ti ti-list"></i> <span>Back to list</span></a>
        <% } %>
        </div>
      </div>
    </div>
  </div>
</div>
<div class="page-body">
<% if data.mode == "list" { %>
  <rest-admin-view doctype="<%= escape(doctype) %>" view="list"></rest-admin-view>
<% } else if docname == "" { %>
  <rest-admin-view doctype="<%= escape(doctype) %>" view="form"></rest-admin-view>
<% } else { %>
  <rest-admin-view doctype="<%= escape(doctype) %>" docname="<%= escape(docname) %>" view="form"></rest-admin-view>
<% } %>
</div>`

const listTemplate = `<div class="container-fluid">
  <div class="card">
    <div class="card-header">
      <a href="#" class="btn btn-ghost-secondary btn-refresh" on:click="Refresh"><i class="ti ti-refresh"></i></a>
    </div>
    <div class="table-responsive">
      <table class="table card-table table-vcenter table-nowrap table-striped table-hover">
        <thead>
          <tr>
          <% for field in fields { %>
            <th data-fieldname="<%= escape(field.fieldname) %>"<% if field.fieldtype in numeric { %> class="text-right"<% } %>><%= escape(field.label) %></th>
          <% } %>
            <th>Actions</th>
          </tr>
        </thead>
        <tbody>
        <% for row in data { %>
          <tr data-name="<%= escape(row.name) %>">
          <% for field in fields { %>
            <td data-fieldname="<%= escape(field.fieldname) %>"<% if field.fieldtype in numeric { %> class="text-right"<% } %>><%= CellDisplay(field, row[field.fieldname]) %></td>
          <% } %>
            <td>
              <div class="btn-group">
                <a href="?docname=<%= escape(row.name) %>" class="btn btn-ghost-primary btn-icon btn-edit"><i class="ti ti-pencil"></i></a>
                <a href="#" class="btn btn-ghost-danger btn-icon btn-delete" data-docname="<%= escape(row.name) %>" on:click="Delete"><i class="ti ti-trash"></i></a>
              </div>
            </td>
          </tr>
        <% } %>
        </tbody>
      </table>
    </div>
  </div>
</div>`

const formTemplate = `<div class="container-fluid">
  <div class="card">
    <div class="card-header">
      <div class="card-title">
      <% if docname != "" { %><h4>Edit <%= escape(doctype) %> <%= escape(docname) %></h4><% } else { %><h4>New <%= escape(doctype) %></h4><% } %>
      </div>
      <div class="d-flex">
        <a href="#" class="btn btn-ghost-danger btn-cancel" on:click="Cancel">Cancel</a>
        <a href="#" class="btn btn-ghost-primary btn-save" on:click="Save">Save</a>
      </div>
    </div>
    <div class="card-body">
    <% for field in fields { %>
      <div class="mb-3">
        <label class="form-label"><%= escape(field.label) %></label>
        <% if field.fieldtype == "Check" { %>
        <input type="checkbox" class="form-check-input" name="<%= escape(field.fieldname) %>"<% if data[field.fieldname] { %> checked<% } %> on:change="Toggle"/>
        <% } else { %>
        <input class="form-control" name="<%= escape(field.fieldname) %>" value="<%= escape(data[field.fieldname]) %>" on:input="Field"/>
        <% } %>
      </div>
    <% } %>
    </div>
  </div>
</div>`
